package analysis

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mobistudy/indicators-backend-go/internal/attachments"
	"github.com/mobistudy/indicators-backend-go/internal/daybucket"
	"github.com/mobistudy/indicators-backend-go/internal/models"
)

// Producer is a named aggregation recipe owning a disjoint indicator namespace
type Producer interface {
	// Name is the producer key stored on every indicator it writes
	Name() string

	// TaskType is the raw result task type the producer consumes
	TaskType() string

	// FindAndProcess folds every unprocessed result in scope into indicators
	FindAndProcess(ctx context.Context, scope Scope) (*Tally, error)
}

// Scope identifies the results a run works on
type Scope struct {
	StudyKey string `json:"studyKey"`
	UserKey  string `json:"userKey"`
	TaskIDs  []int  `json:"taskIds"`
}

// Validate rejects scopes missing a study, a user or task IDs
func (s Scope) Validate() error {
	var missing []string
	if strings.TrimSpace(s.StudyKey) == "" {
		missing = append(missing, "studyKey")
	}
	if strings.TrimSpace(s.UserKey) == "" {
		missing = append(missing, "userKey")
	}
	if len(s.TaskIDs) == 0 {
		missing = append(missing, "taskIds")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidScope, strings.Join(missing, ", "))
	}
	return nil
}

// Tally counts what one FindAndProcess call did
type Tally struct {
	Found       int `json:"found"`
	Processed   int `json:"processed"`
	Skipped     int `json:"skipped"`
	Failed      int `json:"failed"`
	Created     int `json:"created"`
	Merged      int `json:"merged"`
	Duplicates  int `json:"duplicates"`
	WriteErrors int `json:"writeErrors"`
}

// ResultStore is the raw result store as seen by producers
type ResultStore interface {
	FindUnprocessed(ctx context.Context, studyKey, userKey, producer string, taskIDs []int) ([]string, error)
	Get(ctx context.Context, key string) (*models.TaskResult, error)
	MarkProcessed(ctx context.Context, producer, resultKey string) error
}

// IndicatorStore is the indicator store as seen by producers
type IndicatorStore interface {
	Query(ctx context.Context, q models.IndicatorQuery) ([]*models.Indicator, error)
	Create(ctx context.Context, ind *models.Indicator) (*models.Indicator, error)
	Update(ctx context.Context, key string, ind *models.Indicator) (*models.Indicator, error)
}

// Dependencies are the collaborators handed to every producer factory
type Dependencies struct {
	Results     ResultStore
	Indicators  IndicatorStore
	Attachments attachments.Store
	Bucketer    *daybucket.Bucketer
	Logger      zerolog.Logger
	Options     PipelineOptions
}

// ProducerFactory is a function that creates a producer instance
type ProducerFactory func(deps Dependencies) Producer

// ProducerRegistry maps producer names to factories
var ProducerRegistry = make(map[string]ProducerFactory)

// RegisterProducer registers a producer factory under its name
func RegisterProducer(name string, factory ProducerFactory) {
	ProducerRegistry[name] = factory
}

// NewRegisteredProducers builds one instance of every registered producer,
// ordered by name.
func NewRegisteredProducers(deps Dependencies) []Producer {
	names := make([]string, 0, len(ProducerRegistry))
	for name := range ProducerRegistry {
		names = append(names, name)
	}
	sort.Strings(names)

	producers := make([]Producer, 0, len(names))
	for _, name := range names {
		producers = append(producers, ProducerRegistry[name](deps))
	}
	return producers
}
