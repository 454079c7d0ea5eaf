package plugin

import (
	"context"

	"github.com/hoistjs/hoist/internal/graph"
)

// Driver calls the hooks of every plugin in registration order. It holds no
// state of its own, so one driver can be shared by the module loader's
// worker goroutines.
type Driver struct {
	plugins []Plugin
}

func NewDriver(plugins []Plugin) *Driver {
	return &Driver{plugins: append([]Plugin(nil), plugins...)}
}

func (d *Driver) Len() int {
	if d == nil {
		return 0
	}
	return len(d.plugins)
}

func (d *Driver) wrap(plugin *Plugin, hook Hook, err error) error {
	if err == nil {
		return nil
	}
	name := plugin.Name
	if name == "" {
		name = "unnamed"
	}
	return &Error{Plugin: name, Hook: hook, Err: err}
}

func (d *Driver) BuildStart(ctx context.Context) error {
	if d == nil {
		return nil
	}
	for i := range d.plugins {
		if p := &d.plugins[i]; p.BuildStart != nil {
			if err := d.wrap(p, HookBuildStart, p.BuildStart(ctx)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Returns nil if no plugin resolved the specifier. The name of the plugin
// that resolved it is returned for diagnostics.
func (d *Driver) ResolveID(args ResolveArgs) (*ResolveResult, string, error) {
	if d == nil {
		return nil, "", nil
	}
	for i := range d.plugins {
		p := &d.plugins[i]
		if p.ResolveID == nil {
			continue
		}
		result, err := p.ResolveID(args)
		if err != nil {
			return nil, p.Name, d.wrap(p, HookResolveID, err)
		}
		if result != nil {
			return result, p.Name, nil
		}
	}
	return nil, "", nil
}

func (d *Driver) Load(args LoadArgs) (*LoadResult, string, error) {
	if d == nil {
		return nil, "", nil
	}
	for i := range d.plugins {
		p := &d.plugins[i]
		if p.Load == nil {
			continue
		}
		result, err := p.Load(args)
		if err != nil {
			return nil, p.Name, d.wrap(p, HookLoad, err)
		}
		if result != nil {
			return result, p.Name, nil
		}
	}
	return nil, "", nil
}

func (d *Driver) Transform(args TransformArgs) (string, error) {
	if d == nil {
		return args.Contents, nil
	}
	for i := range d.plugins {
		p := &d.plugins[i]
		if p.Transform == nil {
			continue
		}
		contents, err := p.Transform(args)
		if err != nil {
			return "", d.wrap(p, HookTransform, err)
		}
		args.Contents = contents
	}
	return args.Contents, nil
}

func (d *Driver) BuildEnd(ctx context.Context, args *BuildEndArgs) error {
	if d == nil {
		return nil
	}
	for i := range d.plugins {
		if p := &d.plugins[i]; p.BuildEnd != nil {
			if err := d.wrap(p, HookBuildEnd, p.BuildEnd(ctx, args)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) RenderStart(ctx context.Context) error {
	if d == nil {
		return nil
	}
	for i := range d.plugins {
		if p := &d.plugins[i]; p.RenderStart != nil {
			if err := d.wrap(p, HookRenderStart, p.RenderStart(ctx)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) RenderError(ctx context.Context, renderErr error) error {
	if d == nil {
		return nil
	}
	for i := range d.plugins {
		if p := &d.plugins[i]; p.RenderError != nil {
			if err := d.wrap(p, HookRenderError, p.RenderError(ctx, renderErr)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) GenerateBundle(ctx context.Context, files *[]graph.OutputFile, isWrite bool) error {
	if d == nil {
		return nil
	}
	for i := range d.plugins {
		if p := &d.plugins[i]; p.GenerateBundle != nil {
			if err := d.wrap(p, HookGenerateBundle, p.GenerateBundle(ctx, files, isWrite)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) WriteBundle(ctx context.Context, files []graph.OutputFile) error {
	if d == nil {
		return nil
	}
	for i := range d.plugins {
		if p := &d.plugins[i]; p.WriteBundle != nil {
			if err := d.wrap(p, HookWriteBundle, p.WriteBundle(ctx, files)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Driver) CloseBundle(ctx context.Context) error {
	if d == nil {
		return nil
	}
	for i := range d.plugins {
		if p := &d.plugins[i]; p.CloseBundle != nil {
			if err := d.wrap(p, HookCloseBundle, p.CloseBundle(ctx)); err != nil {
				return err
			}
		}
	}
	return nil
}
