package tooldock

// Options is the root command that groups sub-commands. Struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Version bool        `short:"v" long:"version" description:"print version and exit"`
	Serve   *ServeCmd   `command:"serve" description:"Run the OpenAPI, MCP, and admin frontends"`
	Reload  *ReloadCmd  `command:"reload" description:"Trigger a tool reload"`
	Servers *ServersCmd `command:"servers" description:"Manage external MCP servers"`
}

// Init instantiates the sub-command referenced by the first argument so
// that flags.Parse can populate its fields.
func (o *Options) Init(firstArg string) {
	switch firstArg {
	case "serve":
		o.Serve = &ServeCmd{}
	case "reload":
		o.Reload = &ReloadCmd{}
	case "servers":
		o.Servers = &ServersCmd{}
	}
}
