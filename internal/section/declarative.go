package section

import (
	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/view"
)

// Declarative hands the view a complete clip plane set description. The view
// swaps the whole configuration at once, so there is no partial state.
type Declarative struct{}

// Name returns the backend identity.
func (Declarative) Name() domain.CutPlaneBackend { return domain.BackendDeclarative }

// Apply replaces the view's clip configuration with the single plane.
func (Declarative) Apply(v view.ViewState, plane domain.ClipPlane) error {
	return setDeclarative(v, domain.ClipPlaneSet{Planes: []domain.ClipPlane{plane}, Enabled: true})
}

// Clear replaces the view's clip configuration with an empty, disabled set.
func (Declarative) Clear(v view.ViewState) error {
	return setDeclarative(v, domain.ClipPlaneSet{})
}

func setDeclarative(v view.ViewState, set domain.ClipPlaneSet) error {
	dc, ok := v.(view.DeclarativeClipper)
	if !ok {
		return domain.ErrBackendUnavailable
	}
	desc, err := view.EncodeClipPlaneSet(set)
	if err != nil {
		return err
	}
	return dc.SetClippingPlanes(desc)
}
