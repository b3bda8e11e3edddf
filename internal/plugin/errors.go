package plugin

import (
	"errors"
	"fmt"
	"strings"
)

// Plugin runtime errors.
var (
	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("invalid argument")

	// ErrNoTarget is matched by *NoTargetError.
	ErrNoTarget = errors.New("no enabled plugin matched the target")

	// ErrNoMethod is matched by *NoMethodError.
	ErrNoMethod = errors.New("no matched plugin exposes the method")

	// ErrLoad is matched by every *LoadError.
	ErrLoad = errors.New("plugin load failed")

	// ErrPluginNotFound is returned when a named plugin is not registered.
	ErrPluginNotFound = errors.New("plugin not found")

	// ErrNoLoader is returned when a target must be resolved but no Loader is configured.
	ErrNoLoader = errors.New("no loader configured")

	// ErrModuleNotFound is returned by ModuleLoader for unknown module names.
	ErrModuleNotFound = errors.New("module not found")

	// ErrCommandForbidden is returned by bus commands disabled through
	// ManagerConfig.NoEventAdd or ManagerConfig.NoEventRemoval.
	ErrCommandForbidden = errors.New("command forbidden by manager configuration")

	// ErrPluginPanic is matched by invocation errors caused by a panicking plugin method.
	ErrPluginPanic = errors.New("plugin method panicked")
)

// ValidationError reports a malformed registration or invocation argument.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is allows errors.Is to match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NoTargetError is returned when ManagerConfig.ThrowOnInvalidTarget is set
// and a dispatch matched no enabled plugin by name.
type NoTargetError struct {
	Method  string
	Targets []string
}

// Error implements the error interface.
func (e *NoTargetError) Error() string {
	return fmt.Sprintf("%s: method %q, targets [%s]", ErrNoTarget, e.Method, describeTargets(e.Targets))
}

// Is allows errors.Is to match ErrNoTarget.
func (e *NoTargetError) Is(target error) bool {
	return target == ErrNoTarget
}

// NoMethodError is returned when ManagerConfig.ThrowOnInvalidMethod is set
// and no matched plugin exposed the method.
type NoMethodError struct {
	Method  string
	Targets []string
}

// Error implements the error interface.
func (e *NoMethodError) Error() string {
	return fmt.Sprintf("%s: method %q, targets [%s]", ErrNoMethod, e.Method, describeTargets(e.Targets))
}

// Is allows errors.Is to match ErrNoMethod.
func (e *NoMethodError) Is(target error) bool {
	return target == ErrNoMethod
}

// LoadError wraps a failure to resolve a plugin target.
type LoadError struct {
	Name   string
	Target string
	Err    error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("load plugin %q from %q: %v", e.Name, e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Is allows errors.Is to match ErrLoad.
func (e *LoadError) Is(target error) bool {
	return target == ErrLoad
}

// InvocationError wraps an error returned (or a panic raised) by a plugin method.
type InvocationError struct {
	Plugin string
	Method string
	Err    error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("plugin %q method %q: %v", e.Plugin, e.Method, e.Err)
}

// Unwrap returns the underlying error.
func (e *InvocationError) Unwrap() error {
	return e.Err
}

func describeTargets(targets []string) string {
	if targets == nil {
		return "*"
	}
	return strings.Join(targets, ", ")
}
