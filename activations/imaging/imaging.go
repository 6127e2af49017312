// Package imaging is a streaming, bidirectional demo activation built on a
// custom (non-standard) channel payload, exercising the custom half of
// spec §4.3 and the "concurrent bidirectional requests" property from
// spec §8 scenario 6: three questions are issued concurrently, before any
// of their answers is awaited, and each resolves correctly regardless of
// the order responses arrive in.
package imaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hypermemetic/plexus-substrate/internal/activation"
	"github.com/hypermemetic/plexus-substrate/internal/channel"
	"github.com/hypermemetic/plexus-substrate/internal/schema"
)

// Activation implements activation.Activation for the "imaging" namespace.
type Activation struct{}

func (a *Activation) Namespace() string   { return "imaging" }
func (a *Activation) Description() string { return "apply an edit pipeline to an image, asking clarifying questions as needed" }

func (a *Activation) Methods() []activation.Method {
	return []activation.Method{
		{
			Describe: schema.Method{
				Name:           "edit",
				Description:    "apply crop, rotation, and format choices to an image",
				Params:         []schema.Param{{Name: "image_ref", Type: "string", Description: "opaque reference to the source image"}},
				Returns:        "ImagingEvent",
				Streaming:      true,
				Bidirectional:  true,
				RequestSchema:  "imaging.Question",
				ResponseSchema: "imaging.Answer",
			},
			Handler: activation.HandlerFunc(a.edit),
		},
	}
}

// Question is the custom bidirectional request payload: a single field the
// activation needs clarified, distinct from schema.StandardRequest since
// the domain (image edit parameters) doesn't map onto confirm/prompt/select
// cleanly for every field (spec §4.3 "a custom channel uses domain-defined
// types").
type Question struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Options []string `json:"options,omitempty"`
}

// Answer is the custom bidirectional response payload.
type Answer struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type editParams struct {
	ImageRef string `json:"image_ref"`
}

func (a *Activation) edit(ctx context.Context, rc *activation.RunContext, params json.RawMessage) error {
	var p editParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("imaging: decode params: %w", err)
	}

	if err := rc.Data(ctx, "imaging.started", mustJSON(map[string]string{"image_ref": p.ImageRef})); err != nil {
		return err
	}

	questions := []Question{
		{Field: "crop", Message: "Crop to square?", Options: []string{"yes", "no"}},
		{Field: "rotate", Message: "Rotation in degrees?", Options: []string{"0", "90", "180", "270"}},
		{Field: "format", Message: "Output format?", Options: []string{"png", "jpeg", "webp"}},
	}

	answers, err := a.askAll(ctx, rc.Channel(), questions)
	if err != nil {
		var cerr *channel.Error
		if ok := channelErrorAs(err, &cerr); ok {
			if sendErr := rc.Data(ctx, "imaging.error", mustJSON(map[string]string{"message": "could not collect edit parameters: " + cerr.Error()})); sendErr != nil {
				return sendErr
			}
			return rc.Data(ctx, "imaging.done", mustJSON(map[string]any{"applied": false}))
		}
		return err
	}

	if err := rc.Data(ctx, "imaging.applied", mustJSON(answers)); err != nil {
		return err
	}
	return rc.Data(ctx, "imaging.done", mustJSON(map[string]any{"applied": true}))
}

// askAll issues one channel.Request per question concurrently — all three
// are in flight before any answer is awaited — and returns every answer
// keyed by field name once all have resolved. A client that answers out of
// issue order still resolves each goroutine's specific await correctly,
// since each Request call is independently correlated by its own
// request_id.
func (a *Activation) askAll(ctx context.Context, raw *channel.Raw, questions []Question) (map[string]string, error) {
	type outcome struct {
		field string
		value string
		err   error
	}
	results := make(chan outcome, len(questions))

	var wg sync.WaitGroup
	for _, q := range questions {
		wg.Add(1)
		go func(q Question) {
			defer wg.Done()
			answer, err := channel.Request[Question, Answer](ctx, raw, q, 0)
			if err != nil {
				results <- outcome{field: q.Field, err: err}
				return
			}
			results <- outcome{field: q.Field, value: answer.Value}
		}(q)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(map[string]string, len(questions))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		out[res.field] = res.value
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func channelErrorAs(err error, target **channel.Error) bool {
	if cerr, ok := err.(*channel.Error); ok {
		*target = cerr
		return true
	}
	return false
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
