package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModule struct {
	name     string
	priority int
	err      error
	calls    *[]string
}

func (m fakeModule) Name() string  { return m.name }
func (m fakeModule) Priority() int { return m.priority }
func (m fakeModule) Init(ctx *ModuleContext) error {
	*m.calls = append(*m.calls, m.name)
	return m.err
}

func withRegistry(t *testing.T, modules ...Module) {
	saved := moduleRegistry
	moduleRegistry = make(map[string]Module)
	for _, m := range modules {
		Register(m)
	}
	t.Cleanup(func() { moduleRegistry = saved })
}

func TestInitModulesOrder(t *testing.T) {
	var calls []string
	withRegistry(t,
		fakeModule{name: "common", priority: 100, calls: &calls},
		fakeModule{name: "review", priority: 10, calls: &calls},
		fakeModule{name: "user", priority: 1, calls: &calls},
		fakeModule{name: "admin", priority: 10, calls: &calls},
	)

	require.NoError(t, InitModules(&ModuleContext{}))
	assert.Equal(t, []string{"user", "admin", "review", "common"}, calls)
}

func TestInitModulesStopsOnError(t *testing.T) {
	var calls []string
	withRegistry(t,
		fakeModule{name: "user", priority: 1, err: errors.New("db down"), calls: &calls},
		fakeModule{name: "review", priority: 10, calls: &calls},
	)

	err := InitModules(&ModuleContext{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init module user")
	assert.Equal(t, []string{"user"}, calls)
}

type greeter interface{ Greet() string }

type english struct{}

func (english) Greet() string { return "hello" }

func TestProvideLookup(t *testing.T) {
	ctx := &ModuleContext{}

	_, err := Lookup[greeter](ctx, "greeter")
	assert.Error(t, err)

	ctx.Provide("greeter", english{})
	g, err := Lookup[greeter](ctx, "greeter")
	require.NoError(t, err)
	assert.Equal(t, "hello", g.Greet())

	_, err = Lookup[*ModuleContext](ctx, "greeter")
	assert.Error(t, err)
}
