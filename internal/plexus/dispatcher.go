// Package plexus implements the dispatcher at the center of the substrate:
// it hosts registered activations, maintains the self-describing schema
// tree, and routes plexus_call invocations to the right Handler (spec §3,
// §4.1, §4.2).
package plexus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hypermemetic/plexus-substrate/internal/activation"
	"github.com/hypermemetic/plexus-substrate/internal/channel"
	"github.com/hypermemetic/plexus-substrate/internal/provenance"
	"github.com/hypermemetic/plexus-substrate/internal/schema"
	"github.com/hypermemetic/plexus-substrate/internal/streamevent"
	"github.com/hypermemetic/plexus-substrate/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
)

type registered struct {
	act     activation.Activation
	methods map[string]activation.Method
}

// Dispatcher owns the activation registry and the schema tree derived from
// it. A Dispatcher is built once at startup via Register and is safe for
// concurrent Call/Schema/Hash after that, since registration never happens
// concurrently with serving traffic in this substrate.
type Dispatcher struct {
	mu     sync.RWMutex
	byName map[string]*registered
	root   *schema.Node
	valid  *schema.Validator

	tracer telemetry.Tracer
	logger telemetry.Logger
}

// New constructs an empty Dispatcher. tracer/logger may be
// telemetry.NewNoopTracer()/NewNoopLogger() when observability isn't
// wanted.
func New(tracer telemetry.Tracer, logger telemetry.Logger) *Dispatcher {
	return &Dispatcher{
		byName: make(map[string]*registered),
		root:   &schema.Node{},
		valid:  schema.NewValidator(),
		tracer: tracer,
		logger: logger,
	}
}

// Register adds act to the dispatcher, recomputing the schema tree's hashes
// (spec §4.1: "schema hashing is performed at registration time, not per
// call"). Register is not safe to call concurrently with itself or with
// Call.
func (d *Dispatcher) Register(act activation.Activation) error {
	ns := act.Namespace()
	methods := act.Methods()

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.byName[ns]; exists {
		return fmt.Errorf("plexus: activation %q already registered", ns)
	}

	node := &schema.Node{Namespace: ns}
	byMethod := make(map[string]activation.Method, len(methods))
	for _, m := range methods {
		node.Methods = append(node.Methods, m.Describe)
		byMethod[m.Describe.Name] = m
		if m.Describe.RequestSchema != "" {
			// request/response schema compilation, if activations register
			// JSON Schema documents for custom bidirectional payloads, is
			// the activation's own responsibility via schema.Validator.Compile.
			_ = m.Describe.RequestSchema
		}
	}
	node.SortMethods()

	d.root.Children = append(d.root.Children, node)
	d.root.SortMethods()
	if err := d.root.Validate(true); err != nil {
		d.root.Children = d.root.Children[:len(d.root.Children)-1]
		return err
	}
	d.root.Rehash()

	d.byName[ns] = &registered{act: act, methods: byMethod}
	return nil
}

// CompileParamSchema registers a JSON Schema document used to validate a
// method's params ahead of dispatch. name should be "<namespace>_<method>".
func (d *Dispatcher) CompileParamSchema(name string, schemaJSON []byte) error {
	return d.valid.Compile(name, schemaJSON)
}

// Schema returns the root of the introspection tree (spec's plexus_schema).
func (d *Dispatcher) Schema() *schema.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root
}

// Hash returns the root schema hash (plexus_hash).
func (d *Dispatcher) Hash() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.root.Hash()
}

// Call dispatches one plexus_call invocation. It emits Guidance+Error+Done
// on the sink for routing failures (activation/method not found, bad
// params) and otherwise runs the method's Handler, letting the handler
// drive its own Data/Progress/Error events and supplying the closing Done
// when the handler finishes without having already terminated itself.
func (d *Dispatcher) Call(ctx context.Context, sink streamevent.Sink, raw *channel.Raw, namespace, method string, params json.RawMessage) error {
	ctx, span := d.tracer.Start(ctx, "plexus.call")
	defer span.End()
	span.AddEvent("dispatch", "namespace", namespace, "method", method)

	prov := provenance.Root(namespace).Extend(method)
	hash := d.Hash()

	d.mu.RLock()
	reg, ok := d.byName[namespace]
	d.mu.RUnlock()
	if !ok {
		return d.routingFailure(ctx, sink, prov, hash, "activation_not_found",
			fmt.Sprintf("no activation registered under namespace %q", namespace),
			"", d.namespaceNames())
	}

	m, ok := reg.methods[method]
	if !ok {
		return d.routingFailure(ctx, sink, prov, hash, "method_not_found",
			fmt.Sprintf("activation %q has no method %q", namespace, method),
			namespace, d.methodNames(reg))
	}

	schemaName := namespace + "_" + method
	if err := d.valid.Validate(schemaName, params); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return d.routingFailure(ctx, sink, prov, hash, "invalid_params", err.Error(), namespace, nil)
	}

	if raw == nil || !m.Describe.Bidirectional {
		raw = channel.NewRaw(sink, false)
	}
	raw = raw.WithSchemaHash(hash)

	rc := activation.NewRunContext(sink, prov, hash, raw)
	if err := m.Handler.Handle(ctx, rc, params); err != nil {
		span.RecordError(err)
		if rc.Terminated() {
			return nil
		}
		if sendErr := sink.Send(ctx, streamevent.NewError(prov, hash, err.Error(), false)); sendErr != nil {
			return sendErr
		}
		return nil
	}
	if rc.Terminated() {
		return nil
	}
	return sink.Send(ctx, streamevent.NewDone(prov, hash))
}

// routingFailure implements the dispatcher-level error sequence: Guidance,
// then a recoverable Error, then Done. Unlike handler-raised errors these
// are recoverable because the subscription itself is still healthy — only
// the requested route was bad (spec §9 Guidance-before-Error resolution).
func (d *Dispatcher) routingFailure(ctx context.Context, sink streamevent.Sink, prov provenance.Chain, hash, kind, message, act string, available []string) error {
	if err := sink.Send(ctx, streamevent.NewGuidance(prov, hash, kind, "call plexus_schema", act, "", available)); err != nil {
		return err
	}
	if err := sink.Send(ctx, streamevent.NewError(prov, hash, message, true)); err != nil {
		return err
	}
	return sink.Send(ctx, streamevent.NewDone(prov, hash))
}

func (d *Dispatcher) namespaceNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.byName))
	for ns := range d.byName {
		names = append(names, ns)
	}
	return names
}

func (d *Dispatcher) methodNames(r *registered) []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	return names
}
