package upstream

import (
	"context"

	"github.com/Chromeox/CourseScout-sub015/internal/models"
)

// StaticHandler answers every request with a fixed payload. It backs routes
// declared with `static:` in the route file.
type StaticHandler struct {
	status int
	data   any
}

// NewStaticHandler returns a handler replying 200 with data.
func NewStaticHandler(data any) *StaticHandler {
	return &StaticHandler{status: 200, data: data}
}

func (h *StaticHandler) Handle(ctx context.Context, req *models.RequestEnvelope) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.HandlerResult{StatusCode: h.status, Data: h.data}, nil
}
