package audit

import (
	"context"
	"log/slog"
	"strings"

	"linetrace/internal/platform/metrics"
	"linetrace/internal/uow"
	dErrors "linetrace/pkg/domain-errors"
	"linetrace/pkg/requestcontext"
)

// Args is the argument object of an intercepted operation. Nested input
// objects live under the "input" key, mirroring command-style call sites.
type Args map[string]any

// Input returns the nested input object, or nil when the operation has
// none.
func (a Args) Input() map[string]any {
	switch input := a["input"].(type) {
	case map[string]any:
		return input
	case Args:
		return input
	default:
		return nil
	}
}

// Identifiable lets operation results expose the entity instance they
// affected without the interceptor reflecting over arbitrary types.
type Identifiable interface {
	AuditEntityID() string
}

// OperationSpec is the per-operation metadata consulted by the
// interceptor. Only EntityType is mandatory; everything else has a
// derivation rule.
type OperationSpec struct {
	// Name is the operation's declared name, e.g. "createProductionLine".
	// The action heuristic reads it when no explicit action is given.
	Name string
	// EntityType is the logical entity name recorded on the entry.
	EntityType string
	// Action, when set, overrides every derivation rule.
	Action Action
	// EntityID, when set, is the explicit extraction rule and takes
	// precedence over result and argument lookups.
	EntityID func(args Args, result any) (string, bool)
	// IncludeDetails opts the operation into persisting a sanitized copy of
	// its arguments and result.
	IncludeDetails bool
}

// Operation is a generically-intercepted call site.
type Operation func(ctx context.Context, args Args) (any, error)

// Interceptor derives audit metadata for operations that do not build an
// Entry explicitly. The wrapped operation and the derived audit write run
// inside one Unit-of-Work transaction, so a derivation failure rolls the
// mutation back: no audit record, no mutation.
type Interceptor struct {
	manager  uow.Manager
	recorder *Recorder
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// InterceptorOption configures an Interceptor.
type InterceptorOption func(*Interceptor)

func WithInterceptorLogger(logger *slog.Logger) InterceptorOption {
	return func(i *Interceptor) { i.logger = logger }
}

func WithInterceptorMetrics(m *metrics.Metrics) InterceptorOption {
	return func(i *Interceptor) { i.metrics = m }
}

// NewInterceptor constructs an Interceptor.
func NewInterceptor(manager uow.Manager, recorder *Recorder, opts ...InterceptorOption) *Interceptor {
	i := &Interceptor{
		manager:  manager,
		recorder: recorder,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Wrap returns the operation with audit capture attached.
//
// Without an authenticated actor the operation proceeds unaudited; this is
// a deliberate warn-and-proceed pass-through for actor-free internal
// operations, flagged for product-owner review as a potential compliance
// gap rather than silently hardened.
func (i *Interceptor) Wrap(spec OperationSpec, op Operation) Operation {
	return func(ctx context.Context, args Args) (any, error) {
		actor, ok := requestcontext.ActorFrom(ctx)
		if !ok {
			i.metrics.IncUnaudited()
			i.logger.WarnContext(ctx, "operation proceeding without audit capture: no actor in context",
				"operation", spec.Name,
				"entity_type", spec.EntityType,
			)
			return op(ctx, args)
		}

		reason, err := extractReason(args)
		if err != nil {
			i.logger.ErrorContext(ctx, "audit extraction failed",
				"operation", spec.Name,
				"entity_type", spec.EntityType,
				"error", err,
			)
			return nil, err
		}

		var result any
		txErr := i.manager.RunInTx(ctx, func(ctx context.Context) error {
			var opErr error
			result, opErr = op(ctx, args)
			if opErr != nil {
				return opErr
			}

			entityID, ok := extractEntityID(spec, args, result)
			if !ok {
				return dErrors.Newf(dErrors.CodeValidation,
					"cannot derive entity id for audited operation %s", spec.Name)
			}

			entry := &Entry{
				ActorID:    actor.ID,
				Action:     deriveAction(spec, args),
				EntityType: spec.EntityType,
				EntityID:   entityID,
				Reason:     reason,
			}
			if spec.IncludeDetails {
				entry.Details = buildDetails(args, result)
			}
			return i.recorder.Record(ctx, entry)
		})
		if txErr != nil {
			if dErrors.HasCode(txErr, dErrors.CodeValidation) {
				i.logger.ErrorContext(ctx, "audit extraction failed",
					"operation", spec.Name,
					"entity_type", spec.EntityType,
					"error", txErr,
				)
			}
			return nil, txErr
		}
		return result, nil
	}
}

// extractReason resolves input.reason, then a top-level reason argument.
// Reason is never defaulted; a missing one fails the operation before the
// mutation runs.
func extractReason(args Args) (string, error) {
	if input := args.Input(); input != nil {
		if reason, ok := input["reason"].(string); ok && strings.TrimSpace(reason) != "" {
			return reason, nil
		}
	}
	if reason, ok := args["reason"].(string); ok && strings.TrimSpace(reason) != "" {
		return reason, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "reason is required")
}

// extractEntityID resolves, in order: an explicit rule on the operation
// spec, the result's own id, a top-level id argument, and input.id.
func extractEntityID(spec OperationSpec, args Args, result any) (string, bool) {
	if spec.EntityID != nil {
		if id, ok := spec.EntityID(args, result); ok && id != "" {
			return id, true
		}
		return "", false
	}
	if identifiable, ok := result.(Identifiable); ok {
		if id := identifiable.AuditEntityID(); id != "" {
			return id, true
		}
	}
	if resultMap, ok := result.(map[string]any); ok {
		if id, ok := resultMap["id"].(string); ok && id != "" {
			return id, true
		}
	}
	if id, ok := args["id"].(string); ok && id != "" {
		return id, true
	}
	if input := args.Input(); input != nil {
		if id, ok := input["id"].(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// deriveAction resolves, in order: an explicitly declared action, an action
// field in the input naming a known action, a heuristic over the operation
// name, and finally UPDATE.
func deriveAction(spec OperationSpec, args Args) Action {
	if spec.Action != "" {
		return spec.Action
	}
	if input := args.Input(); input != nil {
		if raw, ok := input["action"].(string); ok {
			if action, known := ParseAction(raw); known {
				return action
			}
		}
	}
	name := strings.ToLower(spec.Name)
	switch {
	case strings.Contains(name, "create"):
		return ActionCreate
	case strings.Contains(name, "update"):
		return ActionUpdate
	case strings.Contains(name, "delete"), strings.Contains(name, "remove"):
		return ActionDelete
	case strings.Contains(name, "approve"):
		return ActionApprove
	case strings.Contains(name, "reject"):
		return ActionReject
	default:
		return ActionUpdate
	}
}

// buildDetails copies arguments and, when it is a plain object, the result.
// The Recorder sanitizes the copy before persisting.
func buildDetails(args Args, result any) Details {
	details := Details{"arguments": map[string]any(args)}
	if resultMap, ok := result.(map[string]any); ok {
		details["result"] = resultMap
	}
	return details
}
