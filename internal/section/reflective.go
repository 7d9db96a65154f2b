package section

import (
	"fmt"
	"reflect"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

// Names of the undocumented viewpoint members reached by the reflective backend.
const (
	internalClipField = "InternalClipPlanes"
	replacePlanesName = "ReplacePlanes"
	setEnabledName    = "SetEnabled"
)

// Reflective edits the clip plane set attached to a copy of the current
// viewpoint through members that are not part of any published interface,
// then copies the viewpoint back into the view.
type Reflective struct{}

// Name returns the backend identity.
func (Reflective) Name() domain.CutPlaneBackend { return domain.BackendReflective }

// Apply attaches the plane to the viewpoint copy and enables the set.
func (Reflective) Apply(v view.ViewState, plane domain.ClipPlane) error {
	return withViewpointCopy(v, func(set reflect.Value) error {
		if err := callMethod(set, replacePlanesName, []domain.ClipPlane{plane}); err != nil {
			return err
		}
		return callMethod(set, setEnabledName, true)
	})
}

// Clear drops every plane from the viewpoint copy and disables the set.
func (Reflective) Clear(v view.ViewState) error {
	return withViewpointCopy(v, func(set reflect.Value) error {
		if err := callMethod(set, replacePlanesName, []domain.ClipPlane(nil)); err != nil {
			return err
		}
		return callMethod(set, setEnabledName, false)
	})
}

func withViewpointCopy(v view.ViewState, fn func(set reflect.Value) error) error {
	vc, ok := v.(view.ViewpointCopier)
	if !ok {
		return domain.ErrBackendUnavailable
	}
	vp, err := vc.CopyCurrentViewpoint()
	if err != nil {
		return fmt.Errorf("copy viewpoint: %w", err)
	}
	set, err := internalClipPlanes(vp)
	if err != nil {
		return err
	}
	if err := fn(set); err != nil {
		return err
	}
	if err := vc.ApplyViewpoint(vp); err != nil {
		return fmt.Errorf("apply viewpoint: %w", err)
	}
	return nil
}

// internalClipPlanes finds the clip plane set field on a viewpoint copy.
func internalClipPlanes(vp any) (reflect.Value, error) {
	rv := reflect.ValueOf(vp)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return reflect.Value{}, domain.WrapEngineError(domain.ErrBackendFailed.Code, "viewpoint copy is nil", nil)
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return reflect.Value{}, domain.ErrBackendUnavailable
	}
	f := rv.FieldByName(internalClipField)
	if !f.IsValid() || !f.CanInterface() {
		return reflect.Value{}, domain.ErrBackendUnavailable
	}
	if f.Kind() == reflect.Pointer && f.IsNil() {
		return reflect.Value{}, domain.WrapEngineError(domain.ErrBackendFailed.Code, "viewpoint has no clip plane set", nil)
	}
	return f, nil
}

// callMethod invokes target.name(args...) after checking the signature. A
// trailing error result is returned as the call's error.
func callMethod(target reflect.Value, name string, args ...any) error {
	m := target.MethodByName(name)
	if !m.IsValid() && target.CanAddr() {
		m = target.Addr().MethodByName(name)
	}
	if !m.IsValid() {
		return domain.WrapEngineError(domain.ErrBackendUnavailable.Code, "clip plane set has no method "+name, nil)
	}
	mt := m.Type()
	if mt.NumIn() != len(args) {
		return domain.WrapEngineError(domain.ErrBackendFailed.Code,
			fmt.Sprintf("%s takes %d arguments, have %d", name, mt.NumIn(), len(args)), nil)
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		av := reflect.ValueOf(a)
		if !av.Type().AssignableTo(mt.In(i)) {
			return domain.WrapEngineError(domain.ErrBackendFailed.Code,
				fmt.Sprintf("%s argument %d: %s is not assignable to %s", name, i, av.Type(), mt.In(i)), nil)
		}
		in[i] = av
	}
	out := m.Call(in)
	if n := len(out); n > 0 {
		if err, ok := out[n-1].Interface().(error); ok && err != nil {
			return err
		}
	}
	return nil
}
