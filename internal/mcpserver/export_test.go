package mcpserver

var (
	RegisterTools  = registerTools
	VersionHandler = versionHandler
)
