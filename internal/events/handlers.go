package events

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/analysis"
	"github.com/mobistudy/indicators-backend-go/internal/metrics"
	"github.com/mobistudy/indicators-backend-go/internal/models"
)

// Engine runs producers
type Engine interface {
	Run(ctx context.Context, producer, studyKey, userKey string, taskIDs []int) (*analysis.RunReport, error)
	ProducersForTaskType(taskType string) []string
}

// Handlers turns trigger messages into engine runs. Malformed or invalid
// messages are logged and acked; scope-level failures are returned so the
// message is retried and eventually redelivered.
type Handlers struct {
	engine            Engine
	logger            zerolog.Logger
	submittedTopic    string
	runRequestedTopic string
}

// NewHandlers creates the trigger handlers
func NewHandlers(engine Engine, submittedTopic, runRequestedTopic string, logger zerolog.Logger) *Handlers {
	return &Handlers{
		engine:            engine,
		logger:            logger,
		submittedTopic:    submittedTopic,
		runRequestedTopic: runRequestedTopic,
	}
}

// HandleSubmitted runs every producer consuming the submitted task type over
// the result's task.
func (h *Handlers) HandleSubmitted(msg *message.Message) error {
	var event TaskResultSubmitted
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		h.drop(msg, h.submittedTopic, err, "Malformed submission event")
		return nil
	}

	producers := h.engine.ProducersForTaskType(event.TaskType)
	if len(producers) == 0 {
		h.logger.Debug().
			Str("message_uuid", msg.UUID).
			Str("task_type", event.TaskType).
			Msg("No producer for task type")
		metrics.RecordEvent(h.submittedTopic, "ignored")
		return nil
	}

	var errs []error
	for _, producer := range producers {
		if err := h.run(msg, h.submittedTopic, producer, event.StudyKey, event.UserKey, []int{event.TaskID}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// HandleRunRequested runs the requested producer over the requested scope
func (h *Handlers) HandleRunRequested(msg *message.Message) error {
	var req RunRequested
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.drop(msg, h.runRequestedTopic, err, "Malformed run request")
		return nil
	}
	return h.run(msg, h.runRequestedTopic, req.Producer, req.StudyKey, req.UserKey, req.TaskIDs)
}

func (h *Handlers) run(msg *message.Message, topic, producer, studyKey, userKey string, taskIDs []int) error {
	report, err := h.engine.Run(msg.Context(), producer, studyKey, userKey, taskIDs)
	switch {
	case analysis.IsInputError(err):
		h.drop(msg, topic, err, "Invalid trigger")
		return nil
	case err != nil:
		metrics.RecordEvent(topic, "retried")
		return err
	}

	if report.Status == models.RunStatusRejected {
		h.logger.Info().
			Str("message_uuid", msg.UUID).
			Str("producer", producer).
			Str("study", studyKey).
			Str("user", userKey).
			Msg("Run already in flight for scope")
	}
	metrics.RecordEvent(topic, "triggered")
	return nil
}

func (h *Handlers) drop(msg *message.Message, topic string, err error, reason string) {
	h.logger.Warn().Err(err).Str("message_uuid", msg.UUID).Str("topic", topic).Msg(reason)
	metrics.RecordEvent(topic, "dropped")
}
