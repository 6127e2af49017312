// Package wizard is a streaming, bidirectional demo activation built on the
// standard channel. It exercises spec §8 scenarios 1, 3, 4, and 5: the
// happy path (prompt, select, confirm in sequence), timeout, mid-request
// cancellation, and the schema-hash-changes-on-edit invariant (its method
// description is the one a reviewer edits to observe H1 != H2).
package wizard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hypermemetic/plexus-substrate/internal/activation"
	"github.com/hypermemetic/plexus-substrate/internal/channel"
	"github.com/hypermemetic/plexus-substrate/internal/schema"
)

// Activation implements activation.Activation for the "wizard" namespace.
type Activation struct {
	// Templates lists the project templates offered by the select step.
	Templates []string
}

func (a *Activation) Namespace() string { return "wizard" }
func (a *Activation) Description() string {
	return "walk a user through creating a new project interactively"
}

func (a *Activation) Methods() []activation.Method {
	return []activation.Method{
		{
			Describe: schema.Method{
				Name:           "run",
				Description:    "collect a project name, template choice, and confirmation, then create the project",
				Returns:        "WizardEvent",
				Streaming:      true,
				Bidirectional:  true,
				RequestSchema:  "schema.StandardRequest",
				ResponseSchema: "schema.StandardResponse",
			},
			Handler: activation.HandlerFunc(a.run),
		},
	}
}

// Event kinds carried as the content_type of this method's Data events,
// matching spec §8 scenario 1's WizardEvent cases.
const (
	eventStarted          = "wizard.started"
	eventNameCollected    = "wizard.name_collected"
	eventTemplateSelected = "wizard.template_selected"
	eventCreated          = "wizard.created"
	eventDone             = "wizard.done"
	eventError            = "wizard.error"
)

func (a *Activation) templates() []string {
	if len(a.Templates) == 0 {
		return []string{"minimal", "full"}
	}
	return a.Templates
}

func (a *Activation) run(ctx context.Context, rc *activation.RunContext, _ json.RawMessage) error {
	if err := rc.Data(ctx, eventStarted, mustJSON(map[string]any{})); err != nil {
		return err
	}

	std := channel.NewStandardChannel(rc.Channel())

	name, err := std.Prompt(ctx, "Enter project name:", nil, "", 0)
	if err != nil {
		return a.degrade(ctx, rc, err)
	}
	if err := rc.Data(ctx, eventNameCollected, mustJSON(map[string]string{"name": name})); err != nil {
		return err
	}

	template, err := a.askTemplate(ctx, std)
	if err != nil {
		return a.degrade(ctx, rc, err)
	}
	if err := rc.Data(ctx, eventTemplateSelected, mustJSON(map[string]string{"template": template})); err != nil {
		return err
	}

	confirmed, err := std.Confirm(ctx, fmt.Sprintf("Create project %q from template %q?", name, template), nil, 0)
	if err != nil {
		return a.degrade(ctx, rc, err)
	}
	if !confirmed {
		return rc.Data(ctx, eventDone, mustJSON(map[string]any{"created": false}))
	}

	if err := rc.Data(ctx, eventCreated, mustJSON(map[string]string{"name": name, "template": template})); err != nil {
		return err
	}
	return rc.Data(ctx, eventDone, mustJSON(map[string]any{"created": true}))
}

func (a *Activation) askTemplate(ctx context.Context, std *channel.StandardChannel) (string, error) {
	selected, err := std.Select(ctx, "Choose a template:", a.templates(), false, 0)
	if err != nil {
		return "", err
	}
	if len(selected) == 0 {
		return "", fmt.Errorf("wizard: no template selected")
	}
	return selected[0], nil
}

// degrade turns a channel.Error into the in-band error event the activation
// yields before terminating, per spec §8 scenarios 2-4: NotSupported,
// Timeout, and Cancelled all surface as a wizard.error Data event followed
// by a wizard.done Data event (created=false), never as a protocol-level
// failure.
func (a *Activation) degrade(ctx context.Context, rc *activation.RunContext, cause error) error {
	message := "interactive mode required"
	var cerr *channel.Error
	switch {
	case asChannelError(cause, &cerr) && cerr.Kind == channel.KindTimeout:
		message = "timed out waiting for a response"
	case asChannelError(cause, &cerr) && cerr.Kind == channel.KindCancelled:
		message = "cancelled while waiting for a response"
	case asChannelError(cause, &cerr) && cerr.Kind == channel.KindNotSupported:
		message = "interactive mode required"
	}
	if err := rc.Data(ctx, eventError, mustJSON(map[string]string{"message": message})); err != nil {
		return err
	}
	return rc.Data(ctx, eventDone, mustJSON(map[string]any{"created": false}))
}

func asChannelError(err error, target **channel.Error) bool {
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
