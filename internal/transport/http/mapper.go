package http

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/vovakirdan/localchat/internal/core"
	"github.com/vovakirdan/localchat/internal/metrics"
	"github.com/vovakirdan/localchat/internal/proto"
)

const invalidFormat = "Invalid message format."

var knownTypes = map[string]struct{}{
	proto.InboundTypePing:  {},
	proto.InboundTypeJoin:  {},
	proto.InboundTypeLeave: {},
	proto.InboundTypeChat:  {},
	proto.InboundTypeVoice: {},
}

// dispatch decodes one inbound frame and hands it to the relay. Errors are reported
// to the sending connection only.
func (h *WSHandler) dispatch(ctx context.Context, conn *core.Connection, raw []byte) {
	if !gjson.ValidBytes(raw) {
		h.reject(conn, core.NewError(core.ErrCodeInvalidMessage, invalidFormat))
		return
	}
	typ := gjson.GetBytes(raw, "type")
	if typ.Type != gjson.String {
		h.reject(conn, core.NewError(core.ErrCodeInvalidMessage, invalidFormat))
		return
	}

	label := typ.Str
	if _, ok := knownTypes[label]; !ok {
		label = "unknown"
	}
	metrics.FramesReceived.WithLabelValues(label).Inc()

	var err error
	switch typ.Str {
	case proto.InboundTypePing:
		h.relay.Pong(conn)
	case proto.InboundTypeJoin:
		err = h.join(conn, raw)
	case proto.InboundTypeLeave:
		err = h.relay.Leave(conn)
	case proto.InboundTypeChat:
		var frame map[string]any
		if err = json.Unmarshal(raw, &frame); err != nil {
			err = core.NewError(core.ErrCodeInvalidMessage, invalidFormat)
			break
		}
		err = h.relay.Chat(conn, frame)
	case proto.InboundTypeVoice:
		err = h.voice(ctx, conn, raw)
	default:
		err = core.NewError(core.ErrCodeInvalidMessage, invalidFormat)
	}
	if err != nil {
		h.reject(conn, err)
	}
}

func (h *WSHandler) join(conn *core.Connection, raw []byte) error {
	var data proto.JoinData
	if err := json.Unmarshal(raw, &data); err != nil {
		return core.NewError(core.ErrCodeInvalidMessage, invalidFormat)
	}
	if err := h.validate.Struct(data); err != nil {
		return validationError(err)
	}
	return h.relay.Join(conn, core.JoinRequest{
		UserID:    data.UserID,
		Name:      data.Name,
		Latitude:  *data.Latitude,
		Longitude: *data.Longitude,
		Radius:    data.Radius,
		Reconnect: data.Reconnect,
	})
}

// voice transcodes in the background so the read loop keeps serving the socket.
// The sender is resolved before the goroutine starts; the note is delivered even if
// the socket leaves or disconnects meanwhile.
func (h *WSHandler) voice(ctx context.Context, conn *core.Connection, raw []byte) error {
	var data proto.VoiceData
	if err := json.Unmarshal(raw, &data); err != nil {
		return core.NewError(core.ErrCodeInvalidMessage, invalidFormat)
	}
	if err := h.validate.Struct(data); err != nil {
		return validationError(err)
	}

	speaker, err := h.relay.Speaker(conn)
	if err != nil {
		return err
	}

	voiceCtx := context.WithoutCancel(ctx)
	go func() {
		err := h.relay.VoiceFrom(voiceCtx, speaker, core.VoiceRequest{
			AudioData: data.AudioData,
			Duration:  data.Duration,
			Sender:    data.Sender,
		})
		if err != nil {
			h.reject(conn, err)
		}
	}()
	return nil
}

func (h *WSHandler) reject(conn *core.Connection, err error) {
	ce := core.AsError(err)
	h.log.Debug().Str("conn_id", conn.ID).Str("code", ce.Code).Msg(ce.Message)
	h.relay.SendError(conn, ce)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError turns the first failed field into a client facing message.
func validationError(err error) error {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return core.NewError(core.ErrCodeBadRequest, invalidFormat)
	}
	fe := errs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "gte":
		msg = fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		msg = fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		msg = fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	return core.NewError(core.ErrCodeBadRequest, msg)
}
