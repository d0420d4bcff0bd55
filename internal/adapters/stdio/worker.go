// Package stdio adapts the forecast service to a one-shot process: one JSON
// request on standard input, one JSON response on standard output, and
// diagnostics on a separate sink.
package stdio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/revforecast/internal/app"
	"github.com/okian/revforecast/internal/domain/model"
	"github.com/okian/revforecast/internal/domain/series"
	"github.com/okian/revforecast/pkg/logger"
	"github.com/okian/revforecast/pkg/metrics"
)

const (
	defaultMaxInputBytes = 64 << 20
	diagnosticPrefix     = "[forecast error]"
)

// Forecaster is the service the worker drives.
type Forecaster interface {
	Forecast(ctx context.Context, req model.Request) (service.Result, error)
}

// Option configures a Worker.
type Option func(*Worker)

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Worker) {
		if log != nil {
			w.logger = log
		}
	}
}

// WithDiagnostics sets the sink for human-readable failure traces.
func WithDiagnostics(sink io.Writer) Option {
	return func(w *Worker) {
		if sink != nil {
			w.diag = sink
		}
	}
}

// WithMetrics sets the metrics manager.
func WithMetrics(m *metrics.Manager) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithMaxInputBytes bounds how much of the input is read.
func WithMaxInputBytes(n int64) Option {
	return func(w *Worker) {
		if n > 0 {
			w.maxInput = n
		}
	}
}

// Worker handles exactly one request per Run.
type Worker struct {
	svc      Forecaster
	validate *validator.Validate
	logger   logger.Logger
	diag     io.Writer
	metrics  *metrics.Manager
	maxInput int64
}

// New creates a Worker around svc.
func New(svc Forecaster, opts ...Option) *Worker {
	w := &Worker{
		svc:      svc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Nop(),
		diag:     io.Discard,
		maxInput: defaultMaxInputBytes,
	}
	w.validate.RegisterTagNameFunc(jsonFieldName)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run reads one request from in and writes one response to out. The response
// is always a JSON object; the returned error is non-nil exactly when it
// reports success=false.
func (w *Worker) Run(ctx context.Context, in io.Reader, out io.Writer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &KindError{Op: "forecast", Kind: KindInternal, Err: fmt.Errorf("%w: panic: %v", ErrInternal, r)}
			w.fail(ctx, out, err, debug.Stack())
		}
	}()

	req, err := w.decode(in)
	if err != nil {
		w.fail(ctx, out, err, nil)
		return err
	}

	res, err := w.svc.Forecast(ctx, req)
	if err != nil {
		err = WrapKind("forecast", err)
		w.fail(ctx, out, err, nil)
		return err
	}

	if err := w.write(out, model.Succeeded(res.Predictions, res.Model)); err != nil {
		err = &KindError{Op: "write response", Kind: KindInternal, Err: fmt.Errorf("%w: %w", ErrInternal, err)}
		w.fail(ctx, out, err, nil)
		return err
	}
	return nil
}

// Reject answers with a failure envelope without reading a request, for
// errors raised before the worker could run.
func (w *Worker) Reject(ctx context.Context, out io.Writer, err error) error {
	err = &KindError{Op: "start", Kind: KindInternal, Err: fmt.Errorf("%w: %w", ErrInternal, err)}
	w.fail(ctx, out, err, nil)
	return err
}

func (w *Worker) decode(in io.Reader) (model.Request, error) {
	const op = "decode request"
	var req model.Request

	data, err := io.ReadAll(io.LimitReader(in, w.maxInput+1))
	if err != nil {
		return req, &KindError{Op: op, Kind: KindInternal, Err: fmt.Errorf("%w: read input: %w", ErrInternal, err)}
	}
	if int64(len(data)) > w.maxInput {
		return req, &KindError{Op: op, Kind: KindMalformedInput,
			Err: fmt.Errorf("%w: input exceeds %d bytes", series.ErrMalformedInput, w.maxInput)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return req, &KindError{Op: op, Kind: KindEmptyInput, Err: errors.New("no input data provided")}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, &KindError{Op: op, Kind: KindMalformedInput, Err: fmt.Errorf("%w: %w", series.ErrMalformedInput, err)}
	}
	if dec.More() {
		return req, &KindError{Op: op, Kind: KindMalformedInput,
			Err: fmt.Errorf("%w: unexpected data after the request object", series.ErrMalformedInput)}
	}

	if err := w.validate.Struct(req); err != nil {
		return req, validationError(err)
	}
	return req, nil
}

// validationError maps the first failed field to a wire kind.
func validationError(err error) error {
	const op = "validate request"
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &KindError{Op: op, Kind: KindInternal, Err: fmt.Errorf("%w: %w", ErrInternal, err)}
	}
	fe := verrs[0]
	switch fe.Field() {
	case "historical_data":
		return &KindError{Op: op, Kind: KindEmptyInput, Err: series.ErrEmptyInput}
	case "horizon":
		return &KindError{Op: op, Kind: KindValueError,
			Err: fmt.Errorf("%w: must be between 1 and %d", series.ErrInvalidHorizon, model.MaxHorizon)}
	default:
		return &KindError{Op: op, Kind: KindValueError, Err: fmt.Errorf("%s failed %s validation", fe.Field(), fe.Tag())}
	}
}

// fail writes the failure envelope and the diagnostic trace: the error chain,
// plus a stack for internal errors. A recovered panic passes its own stack.
func (w *Worker) fail(ctx context.Context, out io.Writer, err error, stack []byte) {
	kind := KindOf(err)
	msg := fmt.Sprintf("%s: %s", kind, message(err))
	w.metrics.RecordFailure(kind)
	w.logger.Error(ctx, "forecast request failed", logger.String("kind", kind), logger.Error(err))

	fmt.Fprintf(w.diag, "%s %s\n", diagnosticPrefix, msg)
	for e := err; e != nil; e = errors.Unwrap(e) {
		fmt.Fprintf(w.diag, "  caused by: %v\n", e)
	}
	if stack == nil && kind == KindInternal {
		stack = debug.Stack()
	}
	if stack != nil {
		fmt.Fprintf(w.diag, "%s\n", stack)
	}

	if werr := w.write(out, model.Failed(msg)); werr != nil {
		fmt.Fprintf(w.diag, "%s write response: %v\n", diagnosticPrefix, werr)
	}
}

// message drops the operation prefix so the wire text names the problem.
func message(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		return ke.Err.Error()
	}
	return err.Error()
}

func (w *Worker) write(out io.Writer, resp model.Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	data = append(data, '\n')
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func jsonFieldName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" {
		return ""
	}
	return name
}
