// Package aierrors defines the typed error taxonomy shared across AIPerf
// services. Each type wraps an optional underlying cause with
// fmt.Errorf("...: %w", err) so callers can use errors.Is/errors.As.
package aierrors

import "fmt"

// CommunicationError indicates a failure sending or receiving a message over
// the Messaging Fabric (dial failure, EOF, serialization error on the wire).
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("communication error during %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("communication error during %s", e.Op)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// NewCommunicationError wraps err as a CommunicationError for operation op.
func NewCommunicationError(op string, err error) error {
	return &CommunicationError{Op: op, Err: err}
}

// NotInitializedError indicates a component was used before its required
// initialization step ran.
type NotInitializedError struct {
	Component string
}

func (e *NotInitializedError) Error() string {
	return fmt.Sprintf("%s is not initialized", e.Component)
}

// NewNotInitializedError reports that component has not been initialized.
func NewNotInitializedError(component string) error {
	return &NotInitializedError{Component: component}
}

// InvalidStateError indicates an operation was attempted while a component
// was in a state that does not permit it (e.g. a phase with neither a
// request count nor a duration configured).
type InvalidStateError struct {
	Message string
}

func (e *InvalidStateError) Error() string { return e.Message }

// NewInvalidStateError builds an InvalidStateError with the given message.
func NewInvalidStateError(message string) error {
	return &InvalidStateError{Message: message}
}

// NoMetricValue indicates a metric could not be computed for a given record
// or window because required inputs were absent (not an error condition by
// itself; consumers are expected to skip the metric for that record).
type NoMetricValue struct {
	MetricTag string
}

func (e *NoMetricValue) Error() string {
	return fmt.Sprintf("no value available for metric %q", e.MetricTag)
}

// NewNoMetricValue reports that tag has no computable value.
func NewNoMetricValue(tag string) error {
	return &NoMetricValue{MetricTag: tag}
}

// MetricTypeError indicates a metric was registered or referenced with a
// type incompatible with its declared MetricType (e.g. a RECORD metric
// listing a DERIVED metric as a dependency where only RECORD
// dependencies are allowed).
type MetricTypeError struct {
	MetricTag string
	Message   string
}

func (e *MetricTypeError) Error() string {
	return fmt.Sprintf("metric %q: %s", e.MetricTag, e.Message)
}

// NewMetricTypeError builds a MetricTypeError for tag with the given detail.
func NewMetricTypeError(tag, message string) error {
	return &MetricTypeError{MetricTag: tag, Message: message}
}

// PostProcessorDisabled indicates a metric or post-processor was skipped
// because its prerequisites (e.g. goodput SLOs) were not configured for the
// run.
type PostProcessorDisabled struct {
	Name string
}

func (e *PostProcessorDisabled) Error() string {
	return fmt.Sprintf("post-processor %q is disabled for this run", e.Name)
}

// NewPostProcessorDisabled reports that name is disabled for this run.
func NewPostProcessorDisabled(name string) error {
	return &PostProcessorDisabled{Name: name}
}

// ConfigurationError indicates a user-supplied configuration value is
// missing or malformed.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("configuration error for %s", e.Field)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError wraps err as a ConfigurationError for field.
func NewConfigurationError(field string, err error) error {
	return &ConfigurationError{Field: field, Err: err}
}

// ValidationError indicates a configuration value was present but failed
// semantic validation (e.g. request_rate unset or not positive for the
// constant or Poisson rate generator).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for field with the given
// message.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ServiceError indicates a named AIPerf service (timing manager, worker,
// controller, ...) failed during its lifecycle, carrying the service's own
// identity so the controller can attribute ExitErrorInfo correctly.
type ServiceError struct {
	ServiceID string
	Op        string
	Err       error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed during %s: %v", e.ServiceID, e.Op, e.Err)
	}
	return fmt.Sprintf("service %s failed during %s", e.ServiceID, e.Op)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// NewServiceError wraps err as a ServiceError for serviceID during op.
func NewServiceError(serviceID, op string, err error) error {
	return &ServiceError{ServiceID: serviceID, Op: op, Err: err}
}

// LifecycleOperationError indicates a lifecycle transition (start, stop,
// register) was attempted and failed, distinct from ServiceError in that it
// names the lifecycle phase rather than an arbitrary operation.
type LifecycleOperationError struct {
	Phase string
	Err   error
}

func (e *LifecycleOperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lifecycle operation %q failed: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("lifecycle operation %q failed", e.Phase)
}

func (e *LifecycleOperationError) Unwrap() error { return e.Err }

// NewLifecycleOperationError wraps err as a LifecycleOperationError for the
// named lifecycle phase.
func NewLifecycleOperationError(phase string, err error) error {
	return &LifecycleOperationError{Phase: phase, Err: err}
}
