package registry

import (
	"github.com/dukex/actflow/pkg/nodes/httprequest"
	"github.com/dukex/actflow/pkg/nodes/text"
	"github.com/dukex/actflow/pkg/nodes/transform"
	"github.com/dukex/actflow/pkg/nodes/trigger"
)

// RegisterDefaultNodes registers all built-in executor factories with the registry.
func (r *Registry) RegisterDefaultNodes() {
	r.Register(trigger.NewTriggerNodeFactory())

	// text and memo nodes both emit their authored content
	r.Register(text.NewTextNodeFactory())
	r.Register(text.NewMemoNodeFactory())

	r.Register(transform.NewTransformNodeFactory())
	r.Register(httprequest.NewHTTPRequestNodeFactory())
	r.Register(httprequest.NewDataQueryNodeFactory())
}
