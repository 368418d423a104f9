package ops

import (
	"time"

	"github.com/hpungsan/snapfood/internal/errors"
	"github.com/hpungsan/snapfood/internal/nutrition"
	"github.com/hpungsan/snapfood/internal/report"
	"github.com/hpungsan/snapfood/internal/scan"
)

// ListQueueInput contains parameters for the ListQueue operation.
type ListQueueInput struct {
	Limit  int // default: 20, max: 100
	Offset int // default: 0
}

// ListQueueOutput contains the result of the ListQueue operation.
type ListQueueOutput struct {
	Items      []QueueItem `json:"items"`
	Pagination Pagination  `json:"pagination"`
	Sort       string      `json:"sort"`
}

// QueueItem summarizes a queued record.
type QueueItem struct {
	ID        string         `json:"id"`
	Condition string         `json:"condition"`
	DishName  string         `json:"dishName,omitempty"`
	Worst     string         `json:"worst"`
	Score     int            `json:"score"`
	CreatedAt string         `json:"createdAt"`
	SyncState scan.SyncState `json:"syncState"`
}

// ListQueue returns queued records in FIFO order with pagination.
func (s *Service) ListQueue(input ListQueueInput) (*ListQueueOutput, error) {
	limit, offset := clampPage(input.Limit, input.Offset)

	records := s.queue.Snapshot()
	total := len(records)

	items := []QueueItem{}
	if offset < total {
		end := min(offset+limit, total)
		for _, r := range records[offset:end] {
			items = append(items, QueueItem{
				ID:        r.ID,
				Condition: string(r.Condition),
				DishName:  r.DishName,
				Worst:     nutrition.WorstLevel(r.Flags).String(),
				Score:     r.Score(),
				CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
				SyncState: r.SyncState,
			})
		}
	}

	return &ListQueueOutput{
		Items: items,
		Pagination: Pagination{
			Limit:   limit,
			Offset:  offset,
			HasMore: offset+len(items) < total,
			Total:   total,
		},
		Sort: "created_at_asc",
	}, nil
}

// GetQueued returns one queued record.
func (s *Service) GetQueued(id string) (*scan.Record, error) {
	if id == "" {
		return nil, errors.NewInvalidRequest("id is required")
	}
	rec, ok := s.queue.Get(id)
	if !ok {
		return nil, errors.NewNotFound(id)
	}
	return &rec, nil
}

// RemoveQueued discards queued records without delivering them. Records
// being synced are refused with CONFLICT.
func (s *Service) RemoveQueued(ids ...string) error {
	if len(ids) == 0 {
		return errors.NewInvalidRequest("at least one id is required")
	}
	return s.queue.Remove(ids...)
}

// ReportInput contains parameters for the Report operation.
type ReportInput struct {
	ID     string       // required
	Format ReportFormat // default: markdown
}

// ReportOutput contains the result of the Report operation.
type ReportOutput struct {
	ID      string       `json:"id"`
	Format  ReportFormat `json:"format"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
}

// Report renders a queued record.
func (s *Service) Report(input ReportInput) (*ReportOutput, error) {
	format := input.Format
	if format == "" {
		format = ReportMarkdown
	}
	if format != ReportMarkdown && format != ReportHTML {
		return nil, errors.NewInvalidRequest("format must be one of: markdown, html")
	}

	rec, err := s.GetQueued(input.ID)
	if err != nil {
		return nil, err
	}

	content := report.Markdown(*rec)
	if format == ReportHTML {
		if content, err = report.HTML(*rec); err != nil {
			return nil, errors.NewInternal(err)
		}
	}

	return &ReportOutput{
		ID:      rec.ID,
		Format:  format,
		Title:   report.Heading(*rec),
		Content: content,
	}, nil
}
