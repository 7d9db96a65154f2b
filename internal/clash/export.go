// Package clash reads clash detection results and selects the records that
// still need a section view.
package clash

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// maxElements is the number of element references a clash result may carry.
const maxElements = 2

type exportFile struct {
	Tests []testNode `yaml:"tests"`
}

type testNode struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Results []resultNode `yaml:"results"`
}

// resultNode is either a group (has a "group" key) or a clash result.
type resultNode struct {
	node domain.ClashNode
}

type rawResult struct {
	Group    *string      `yaml:"group"`
	Children []resultNode `yaml:"children"`

	ID     string     `yaml:"id"`
	Name   string     `yaml:"name"`
	Status string     `yaml:"status"`
	Center yaml.Node  `yaml:"center"`
	Items  []itemNode `yaml:"items"`
}

type itemNode struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Bounds *boundsNode `yaml:"bounds"`
}

type boundsNode struct {
	Min []float64 `yaml:"min"`
	Max []float64 `yaml:"max"`
}

// UnmarshalYAML decodes one node of the result tree.
func (r *resultNode) UnmarshalYAML(value *yaml.Node) error {
	var raw rawResult
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Group != nil {
		if raw.ID != "" || raw.Status != "" || len(raw.Items) > 0 || !isNull(&raw.Center) {
			return fmt.Errorf("line %d: group %q also has clash result fields", value.Line, *raw.Group)
		}
		g := &domain.ClashGroup{DisplayName: *raw.Group}
		for _, c := range raw.Children {
			g.Children = append(g.Children, c.node)
		}
		r.node = domain.ClashNode{Group: g}
		return nil
	}
	if len(raw.Children) > 0 {
		return fmt.Errorf("line %d: clash result %q has children", value.Line, raw.Name)
	}

	rec, err := raw.record(value.Line)
	if err != nil {
		return err
	}
	r.node = domain.ClashNode{Record: rec}
	return nil
}

func (raw rawResult) record(line int) (*domain.ClashRecord, error) {
	status, err := domain.ParseClashStatus(raw.Status)
	if err != nil {
		return nil, fmt.Errorf("line %d: clash %q: %w", line, raw.Name, err)
	}
	center, err := decodeCenter(&raw.Center)
	if err != nil {
		return nil, fmt.Errorf("line %d: clash %q: %w", line, raw.Name, err)
	}
	if len(raw.Items) > maxElements {
		return nil, fmt.Errorf("line %d: clash %q has %d items, at most %d allowed", line, raw.Name, len(raw.Items), maxElements)
	}
	rec := &domain.ClashRecord{
		ID:          raw.ID,
		DisplayName: raw.Name,
		Status:      status,
		Center:      center,
	}
	for _, it := range raw.Items {
		ref := domain.ElementRef{ID: it.ID, Name: it.Name}
		if it.Bounds != nil {
			b, err := it.Bounds.bounds()
			if err != nil {
				return nil, fmt.Errorf("line %d: clash %q item %q: %w", line, raw.Name, it.ID, err)
			}
			ref.Bounds = b
		}
		rec.Elements = append(rec.Elements, ref)
	}
	return rec, nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == 0 || (n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null")
}

// decodeCenter accepts a three-element sequence. A missing, null or NaN
// center decodes to nil.
func decodeCenter(n *yaml.Node) (*domain.Point3, error) {
	if isNull(n) {
		return nil, nil
	}
	if n.Kind == yaml.ScalarNode {
		var f float64
		if err := n.Decode(&f); err == nil && math.IsNaN(f) {
			return nil, nil
		}
		return nil, fmt.Errorf("center must be a sequence [x, y, z], got %q", n.Value)
	}
	var xyz []float64
	if err := n.Decode(&xyz); err != nil {
		return nil, fmt.Errorf("center: %w", err)
	}
	p, err := point(xyz)
	if err != nil {
		return nil, fmt.Errorf("center: %w", err)
	}
	return &p, nil
}

func (b boundsNode) bounds() (*domain.Bounds, error) {
	lo, err := point(b.Min)
	if err != nil {
		return nil, fmt.Errorf("bounds min: %w", err)
	}
	hi, err := point(b.Max)
	if err != nil {
		return nil, fmt.Errorf("bounds max: %w", err)
	}
	return &domain.Bounds{Min: lo, Max: hi}, nil
}

func point(xyz []float64) (domain.Point3, error) {
	if len(xyz) != 3 {
		return domain.Point3{}, fmt.Errorf("want 3 coordinates, got %d", len(xyz))
	}
	return domain.Point3{X: xyz[0], Y: xyz[1], Z: xyz[2]}, nil
}

// DecodeExport reads a clash export. JSON input is accepted as YAML.
func DecodeExport(r io.Reader) ([]domain.ClashTest, error) {
	var f exportFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode clash export: %w", err)
	}
	tests := make([]domain.ClashTest, 0, len(f.Tests))
	for i, t := range f.Tests {
		name := t.Name
		if name == "" {
			name = fmt.Sprintf("Test %d", i+1)
		}
		ct := domain.ClashTest{ID: t.ID, DisplayName: name, Root: domain.ClashGroup{DisplayName: name}}
		for _, n := range t.Results {
			ct.Root.Children = append(ct.Root.Children, n.node)
		}
		tests = append(tests, ct)
	}
	return tests, nil
}

// LoadExport reads a clash export file.
func LoadExport(path string) ([]domain.ClashTest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read clash export: %w", err)
	}
	return DecodeExport(bytes.NewReader(data))
}
