package radarfile

import (
	"fmt"
	"sort"

	"github.com/ctessum/cdf"

	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/clutter"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/fsutil"
	"github.com/EVS-ATMOS/xsapr-clutter-project/internal/monitoring"
)

type attribute struct {
	name  string
	value interface{}
}

type variable struct {
	name  string
	dims  []string
	attrs []attribute
	data  interface{}
	fill  interface{}
}

// Loader builds Templates from reference files. Field names the variable
// whose dimensions identify data fields.
type Loader struct {
	FS    fsutil.FileSystem
	Field string
}

// NewLoader returns a Loader. An empty field selects DefaultField.
func NewLoader(fsys fsutil.FileSystem, field string) *Loader {
	if field == "" {
		field = DefaultField
	}
	return &Loader{FS: fsys, Field: field}
}

// Template is the in-memory copy of a reference radar file.
type Template struct {
	fs        fsutil.FileSystem
	source    string
	dimNames  []string
	dimLens   map[string]int
	globals   []attribute
	metadata  []variable
	fields    []variable
	fieldDims []string
	logf      func(format string, v ...interface{})
}

// LoadTemplate reads every variable of path. Variables with the same
// dimensions as the loader's field are data fields; everything else is
// metadata and is written back unchanged.
func (l *Loader) LoadTemplate(path string) (clutter.Template, error) {
	return l.Load(path)
}

// Load is LoadTemplate returning the concrete type.
func (l *Loader) Load(path string) (*Template, error) {
	raw, err := l.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := cdf.Open(fsutil.NewBuffer(raw))
	if err != nil {
		return nil, fmt.Errorf("open netcdf: %w", err)
	}
	h := f.Header
	if !hasVariable(h, l.Field) {
		return nil, fmt.Errorf("reference variable %q not found", l.Field)
	}

	t := &Template{
		fs:        l.FS,
		source:    path,
		dimLens:   make(map[string]int),
		fieldDims: h.Dimensions(l.Field),
		logf:      monitoring.Tagged("RadarTemplate"),
	}
	for _, a := range h.Attributes("") {
		t.globals = append(t.globals, attribute{name: a, value: h.GetAttribute("", a)})
	}

	for _, name := range h.Variables() {
		dims := h.Dimensions(name)
		lens := h.Lengths(name)
		for i, d := range dims {
			if _, ok := t.dimLens[d]; !ok {
				t.dimNames = append(t.dimNames, d)
				t.dimLens[d] = lens[i]
			}
		}
		data, err := readAll(f, name)
		if err != nil {
			return nil, err
		}
		v := variable{name: name, dims: dims, data: data}
		for _, a := range h.Attributes(name) {
			if a == "_FillValue" {
				v.fill = h.GetAttribute(name, a)
				continue
			}
			v.attrs = append(v.attrs, attribute{name: a, value: h.GetAttribute(name, a)})
		}
		if sameDims(dims, t.fieldDims) {
			t.fields = append(t.fields, v)
		} else {
			t.metadata = append(t.metadata, v)
		}
	}
	return t, nil
}

func sameDims(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Source returns the path the template was loaded from.
func (t *Template) Source() string { return t.source }

// Shape returns the rays × gates extent of the data fields.
func (t *Template) Shape() clutter.Shape {
	if len(t.fieldDims) != 2 {
		return clutter.Shape{}
	}
	return clutter.Shape{Rows: t.dimLens[t.fieldDims[0]], Cols: t.dimLens[t.fieldDims[1]]}
}

// Fields returns the names of the current data fields.
func (t *Template) Fields() []string {
	names := make([]string, len(t.fields))
	for i, f := range t.fields {
		names[i] = f.name
	}
	return names
}

// Metadata returns the names of the kept metadata variables.
func (t *Template) Metadata() []string {
	names := make([]string, len(t.metadata))
	for i, v := range t.metadata {
		names[i] = v.name
	}
	return names
}

// ClearFields drops every data field.
func (t *Template) ClearFields() {
	t.fields = nil
}

// AddField adds f as a float32 variable named name, replacing any field of
// the same name. Invalid gates are written as FillValue.
func (t *Template) AddField(name string, f clutter.Field) error {
	if got, want := f.Data.Shape(), t.Shape(); got != want {
		return &clutter.ShapeError{Path: t.source, Got: got, Want: want}
	}
	for _, m := range t.metadata {
		if m.name == name {
			return fmt.Errorf("field name %q collides with a metadata variable", name)
		}
	}

	encoded := f.Data.Encode(FillValue)
	data := make([]float32, len(encoded))
	for i, v := range encoded {
		data[i] = float32(v)
	}
	attrs := f.Attributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := variable{
		name: name,
		dims: append([]string(nil), t.fieldDims...),
		data: data,
		fill: []float32{FillValue},
	}
	for _, k := range keys {
		v.attrs = append(v.attrs, attribute{name: k, value: attrs[k]})
	}
	v.attrs = append(v.attrs, attribute{name: "missing_value", value: []float32{FillValue}})

	for i := range t.fields {
		if t.fields[i].name == name {
			t.fields[i] = v
			return nil
		}
	}
	t.fields = append(t.fields, v)
	return nil
}

// Write encodes the template as NetCDF and stores it at path.
func (t *Template) Write(path string) error {
	lens := make([]int, len(t.dimNames))
	for i, d := range t.dimNames {
		lens[i] = t.dimLens[d]
	}
	h := cdf.NewHeader(t.dimNames, lens)
	for _, a := range t.globals {
		h.AddAttribute("", a.name, a.value)
	}

	vars := append(append([]variable(nil), t.metadata...), t.fields...)
	for _, v := range vars {
		fill := v.fill
		if fill == nil {
			fill = zeroOf(v.data)
		}
		h.AddVariable(v.name, v.dims, fill)
		if v.fill != nil && h.GetAttribute(v.name, "_FillValue") == nil {
			h.AddAttribute(v.name, "_FillValue", v.fill)
		}
		for _, a := range v.attrs {
			h.AddAttribute(v.name, a.name, a.value)
		}
	}
	h.Define()

	buf := fsutil.NewBuffer(nil)
	f, err := cdf.Create(buf, h)
	if err != nil {
		return fmt.Errorf("create netcdf: %w", err)
	}
	for _, v := range vars {
		end := f.Header.Lengths(v.name)
		if product(end) == 0 {
			continue
		}
		start := make([]int, len(end))
		if _, err := f.Writer(v.name, start, end).Write(v.data); err != nil {
			return fmt.Errorf("writing variable %s to netcdf file: %w", v.name, err)
		}
	}
	if err := cdf.UpdateNumRecs(buf); err != nil {
		return err
	}
	if err := t.fs.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return err
	}
	t.logf("wrote %s: %d metadata variables, fields %v", path, len(t.metadata), t.Fields())
	return nil
}
