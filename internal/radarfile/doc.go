// Package radarfile reads X-SAPR sweeps from NetCDF (CfRadial-style) files
// and writes clutter radars back out.
//
// Source implements clutter.FrameSource: it decodes one 2-D field
// (reflectivity by default) into a clutter.Frame, treating _FillValue,
// missing_value and non-finite values as invalid and applying
// scale_factor/add_offset to the rest.
//
// Loader implements clutter.TemplateLoader: a Template keeps every
// dimension, global attribute and metadata variable of a reference file,
// treats each variable shaped like the reference field as a data field,
// and writes the metadata plus whatever fields were added.
//
// All I/O goes through fsutil.FileSystem so tests can run in memory.
package radarfile
