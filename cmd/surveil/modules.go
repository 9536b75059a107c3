package main

// Compiled modules. Each registers itself with the core registry.
import (
	_ "github.com/flemzord/surveil/internal/gateway"
	_ "github.com/flemzord/surveil/modules/engine/anthropic"
	_ "github.com/flemzord/surveil/modules/storage/file"
	_ "github.com/flemzord/surveil/modules/storage/sqlite"
)
