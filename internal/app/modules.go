package app

import (
	"github.com/vk/layoutgrid/internal/plugin"
	"github.com/vk/layoutgrid/plugins/power"
	"github.com/vk/layoutgrid/plugins/unit"
)

// coreModules lists the layout plugins compiled into the binary. Embedders
// can pass their own set to NewApp instead.
var coreModules = []plugin.Module{
	&power.Module{},
	&unit.Module{},
}
