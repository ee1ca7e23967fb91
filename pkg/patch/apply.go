package patch

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/macho715/tr-dash-sub000/internal/model"
)

// ApplyResult reports the outcome of applying a patch set. Failures
// are returned, never thrown past this boundary, so the caller decides
// whether to abort or report.
type ApplyResult struct {
	Success  bool
	Document model.Document
	Errors   []error
}

// Apply applies patches to a deep clone of doc. The input document is
// never mutated. On any per-op failure the result carries the errors
// and Success is false; ops before the failure remain applied to the
// returned clone for diagnosis.
func Apply(doc model.Document, patches []model.PatchOp) ApplyResult {
	out := doc.Clone()
	if out == nil {
		out = model.Document{}
	}

	var errs []error
	for i, op := range patches {
		if err := applyOp(out, op); err != nil {
			errs = append(errs, fmt.Errorf("op %d (%s %s): %w", i, op.Op, op.Path, err))
		}
	}

	return ApplyResult{Success: len(errs) == 0, Document: out, Errors: errs}
}

func applyOp(root map[string]any, op model.PatchOp) error {
	segs, err := splitPointer(op.Path)
	if err != nil {
		return err
	}

	last := segs[len(segs)-1]
	if last == "-" || isIndex(last) {
		return applyArrayOp(root, segs, op)
	}

	create := op.Op == model.OpAdd
	parent, key, err := navigate(root, segs, create)
	if err != nil {
		return err
	}
	pm, ok := parent.(map[string]any)
	if !ok {
		return fmt.Errorf("parent of %q is not an object", key)
	}

	switch op.Op {
	case model.OpAdd:
		pm[key] = op.Value
	case model.OpReplace:
		if _, ok := pm[key]; !ok {
			return fmt.Errorf("replace target %q does not exist", key)
		}
		pm[key] = op.Value
	case model.OpRemove:
		if _, ok := pm[key]; !ok {
			return fmt.Errorf("remove target %q does not exist", key)
		}
		delete(pm, key)
	default:
		return fmt.Errorf("unsupported op %q", op.Op)
	}
	return nil
}

// applyArrayOp handles ops whose final segment addresses an array
// element ("-" appends). The array itself must live under an object
// key so the grown slice can be written back.
func applyArrayOp(root map[string]any, segs []string, op model.PatchOp) error {
	if len(segs) < 2 {
		return fmt.Errorf("array op needs a parent path")
	}
	last := segs[len(segs)-1]

	holder, arrKey, err := navigate(root, segs[:len(segs)-1], false)
	if err != nil {
		return err
	}
	hm, ok := holder.(map[string]any)
	if !ok {
		return fmt.Errorf("array %q is not held by an object", arrKey)
	}
	raw, ok := hm[arrKey]
	if !ok {
		return fmt.Errorf("array %q does not exist", arrKey)
	}
	arr, ok := raw.([]any)
	if !ok {
		return fmt.Errorf("%q is not an array", arrKey)
	}

	if last == "-" {
		if op.Op != model.OpAdd {
			return fmt.Errorf("%q only supports add on append", op.Op)
		}
		hm[arrKey] = append(arr, op.Value)
		return nil
	}

	idx, _ := strconv.Atoi(last)
	if idx < 0 || idx >= len(arr) {
		return fmt.Errorf("index %d out of range for %q", idx, arrKey)
	}
	switch op.Op {
	case model.OpAdd:
		arr = append(arr[:idx], append([]any{op.Value}, arr[idx:]...)...)
		hm[arrKey] = arr
	case model.OpReplace:
		arr[idx] = op.Value
	case model.OpRemove:
		hm[arrKey] = append(arr[:idx], arr[idx+1:]...)
	default:
		return fmt.Errorf("unsupported op %q", op.Op)
	}
	return nil
}

// navigate walks all but the final path segment and returns the parent
// container plus the final key. With create set, missing intermediate
// objects are created (the add semantics); otherwise a missing segment
// is an error.
func navigate(root map[string]any, segs []string, create bool) (any, string, error) {
	if len(segs) == 0 {
		return nil, "", fmt.Errorf("empty pointer")
	}

	var cur any = map[string]any(root)
	for _, seg := range segs[:len(segs)-1] {
		switch c := cur.(type) {
		case map[string]any:
			next, ok := c[seg]
			if !ok {
				if !create {
					return nil, "", fmt.Errorf("segment %q not found", seg)
				}
				m := map[string]any{}
				c[seg] = m
				next = m
			}
			cur = next
		case []any:
			if !isIndex(seg) {
				return nil, "", fmt.Errorf("segment %q is not an array index", seg)
			}
			idx, _ := strconv.Atoi(seg)
			if idx < 0 || idx >= len(c) {
				return nil, "", fmt.Errorf("index %d out of range", idx)
			}
			cur = c[idx]
		default:
			return nil, "", fmt.Errorf("cannot descend into scalar at %q", seg)
		}
	}
	return cur, segs[len(segs)-1], nil
}

// splitPointer splits a JSON pointer into unescaped segments.
func splitPointer(path string) ([]string, error) {
	if path == "" || path[0] != '/' {
		return nil, fmt.Errorf("pointer %q must start with /", path)
	}
	segs := strings.Split(path[1:], "/")
	for i, seg := range segs {
		seg = strings.ReplaceAll(seg, "~1", "/")
		segs[i] = strings.ReplaceAll(seg, "~0", "~")
	}
	return segs, nil
}

func isIndex(seg string) bool {
	if seg == "" {
		return false
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
