package clutter

// FieldName is the name under which the clutter mask is attached to the
// output radar.
const FieldName = "xsapr_clutter"

// Field is one named data field of a radar object, with the CF attributes
// writers attach to it.
type Field struct {
	Units        string
	StandardName string
	LongName     string
	Notes        string
	Data         MaskedGrid
}

// Attributes returns the string attributes of the field keyed by their
// CF names.
func (f Field) Attributes() map[string]string {
	return map[string]string{
		"units":         f.Units,
		"standard_name": f.StandardName,
		"long_name":     f.LongName,
		"notes":         f.Notes,
	}
}

// ClutterField wraps a clutter mask in the field description written to
// the output radar.
func ClutterField(mask MaskedGrid) Field {
	return Field{
		Units:        "unitless",
		StandardName: "xsapr_clutter",
		LongName:     "X-SAPR Clutter",
		Notes:        "0: No Clutter, 1: Clutter",
		Data:         mask,
	}
}

// Template is a radar object built from a reference sweep. Its metadata is
// kept; its data fields are replaced by the caller.
type Template interface {
	ClearFields()
	AddField(name string, f Field) error
	Write(path string) error
}

// TemplateLoader builds a Template from a reference file.
type TemplateLoader interface {
	LoadTemplate(path string) (Template, error)
}

// BuildClutterRadar loads a template from ref, replaces its fields with the
// clutter mask under name, and writes it to outFile when write is true.
// Load and write failures come back as *ReadError and *WriteError.
func BuildClutterRadar(loader TemplateLoader, ref string, name string, mask MaskedGrid, outFile string, write bool) (Template, error) {
	if name == "" {
		name = FieldName
	}
	tmpl, err := loader.LoadTemplate(ref)
	if err != nil {
		return nil, &ReadError{Path: ref, Err: err}
	}
	tmpl.ClearFields()
	if err := tmpl.AddField(name, ClutterField(mask)); err != nil {
		return nil, &WriteError{Path: outFile, Err: err}
	}
	if !write {
		return tmpl, nil
	}
	if err := tmpl.Write(outFile); err != nil {
		return nil, &WriteError{Path: outFile, Err: err}
	}
	return tmpl, nil
}
