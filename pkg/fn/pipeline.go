package fn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "github.com/WessleyAI/wessley-rag/pkg/fn"

// Stage is a function that transforms In to Out within a context.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then composes two stages, short-circuiting on error.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		r := first(ctx, a)
		if r.IsErr() {
			return Err[C](r.err)
		}
		return second(ctx, r.val)
	}
}

// Guard fails with the context error instead of running stage once ctx
// is done.
func Guard[In, Out any](stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		if err := ctx.Err(); err != nil {
			return Err[Out](err)
		}
		return stage(ctx, in)
	}
}

// Lift wraps a (value, error) function as a Stage.
func Lift[In, Out any](f func(context.Context, In) (Out, error)) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		return FromPair(f(ctx, in))
	}
}

// MapStage wraps a pure function as a Stage.
func MapStage[In, Out any](f func(In) Out) Stage[In, Out] {
	return func(_ context.Context, in In) Result[Out] {
		return Ok(f(in))
	}
}

// TapStage runs a side-effect and passes the value through.
func TapStage[T any](f func(context.Context, T)) Stage[T, T] {
	return func(ctx context.Context, t T) Result[T] {
		f(ctx, t)
		return Ok(t)
	}
}

// MapErr rewrites the error of a failed stage, e.g. to tag it.
func MapErr[In, Out any](stage Stage[In, Out], f func(error) error) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		r := stage(ctx, in)
		if r.IsErr() {
			return Err[Out](f(r.err))
		}
		return r
	}
}

// Observe calls done with the stage duration and error after every run.
func Observe[In, Out any](stage Stage[In, Out], done func(ctx context.Context, d time.Duration, err error)) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		start := time.Now()
		r := stage(ctx, in)
		done(ctx, time.Since(start), r.err)
		return r
	}
}

// TracedStage wraps a stage with OTel span creation.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		span.SetAttributes(attribute.String("stage", name))
		result := stage(ctx, in)
		if result.IsErr() {
			span.RecordError(result.err)
			span.SetStatus(codes.Error, result.err.Error())
		}
		return result
	}
}
