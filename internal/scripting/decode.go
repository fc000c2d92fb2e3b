package scripting

import (
	"errors"
	"fmt"
	"math"

	"github.com/joeycumines/nativebridge/internal/mount"
)

// decodeItem converts one exported JS mount item. The op field selects the
// variant:
//
//	{op: "create", surface, tag, type, props?}
//	{op: "update", surface, tag, props}
//	{op: "insert", surface, parent, child, index}
//	{op: "remove", surface, parent, child}
//	{op: "delete", surface, tag}
func decodeItem(r map[string]any) (mount.Item, error) {
	op, _ := r["op"].(string)
	d := decoder{r: r}
	surface := d.integer("surface")
	var item mount.Item
	switch op {
	case "create":
		typ, _ := r["type"].(string)
		if typ == "" {
			return nil, errors.New("create requires a type")
		}
		item = mount.Create{Surface: surface, Tag: d.integer("tag"), ViewType: typ, Props: d.props()}
	case "update":
		item = mount.Update{Surface: surface, Tag: d.integer("tag"), Props: d.props()}
	case "insert":
		item = mount.Insert{Surface: surface, Parent: d.integer("parent"), Child: d.integer("child"), Index: d.integer("index")}
	case "remove":
		item = mount.Remove{Surface: surface, Parent: d.integer("parent"), Child: d.integer("child")}
	case "delete":
		item = mount.Delete{Surface: surface, Tag: d.integer("tag")}
	default:
		return nil, fmt.Errorf("unknown op %q", op)
	}
	if d.err != nil {
		return nil, fmt.Errorf("%s: %w", op, d.err)
	}
	return item, nil
}

// decoder records the first field error.
type decoder struct {
	r   map[string]any
	err error
}

func (d *decoder) integer(key string) int {
	v, ok := d.r[key]
	if !ok {
		d.fail(fmt.Errorf("missing %s", key))
		return 0
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int(n)
		}
	}
	d.fail(fmt.Errorf("%s must be an integer, got %v", key, v))
	return 0
}

func (d *decoder) props() mount.Props {
	switch v := d.r["props"].(type) {
	case nil:
		return nil
	case map[string]any:
		return mount.Props(v)
	default:
		d.fail(fmt.Errorf("props must be an object, got %T", v))
		return nil
	}
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}
