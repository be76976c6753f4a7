package smof

import (
	"context"
	"os"

	"github.com/smoftools/smof/internal/arena"
	"github.com/smoftools/smof/internal/driver"
	"github.com/smoftools/smof/internal/errs"
	"github.com/smoftools/smof/internal/layout"
	"github.com/smoftools/smof/internal/objfmt"
)

// LinkOptions configures a multi-object link into one output object.
type LinkOptions = driver.LinkOptions

// OutputType selects the emitted artifact shape.
type OutputType = layout.OutputType

// Output type constants, re-exported for callers that configure LinkOptions
// without importing internal/layout directly.
const (
	OutputExecutable    = layout.OutputExecutable
	OutputSharedLibrary = layout.OutputSharedLibrary
	OutputStaticLibrary = layout.OutputStaticLibrary
	OutputObjectFile    = layout.OutputObject
	OutputBinaryFlat    = layout.OutputBinaryFlat
)

// LinkResult is the outcome of a successful Link call.
type LinkResult = driver.LinkResult

// Link resolves symbols across objs, lays out sections, patches
// relocations, and returns the linked object model.
func Link(ctx context.Context, objs []*Object, names []string, opts LinkOptions) (*LinkResult, error) {
	a := arena.New(DefaultArenaCapacity * (len(objs) + 1))
	return driver.Link(ctx, objs, names, a, opts)
}

// LinkFiles opens every named object file, links them per opts, and writes
// the resulting object to outPath.
func LinkFiles(ctx context.Context, outPath string, objectPaths []string, opts LinkOptions) (*LinkResult, error) {
	objs := make([]*Object, 0, len(objectPaths))
	for _, p := range objectPaths {
		f, err := OpenObject(p)
		if err != nil {
			return nil, err
		}
		objs = append(objs, f.Object())
	}

	result, err := Link(ctx, objs, objectPaths, opts)
	if err != nil {
		return nil, err
	}

	data, err := objfmt.Emit(result.Object)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return nil, errs.New(errs.FileIO, "writing linked object "+outPath, err)
	}
	return result, nil
}

// EmitObject serializes obj to its on-disk SMOF representation.
func EmitObject(obj *Object) ([]byte, error) { return objfmt.Emit(obj) }
