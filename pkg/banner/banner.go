package banner

import (
	"fmt"

	"duochat/pkg/config"
)

const banner = `
██████╗ ██╗   ██╗ ██████╗  ██████╗██╗  ██╗ █████╗ ████████╗
██╔══██╗██║   ██║██╔═══██╗██╔════╝██║  ██║██╔══██╗╚══██╔══╝
██║  ██║██║   ██║██║   ██║██║     ███████║███████║   ██║
██║  ██║██║   ██║██║   ██║██║     ██╔══██║██╔══██║   ██║
██████╔╝╚██████╔╝╚██████╔╝╚██████╗██║  ██║██║  ██║   ██║
╚═════╝  ╚═════╝  ╚═════╝  ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝
`

// PrintWithEff prints the startup banner with the effective runtime config.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	dbPath := eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("WS   /ws - realtime connection (announce, send, typing, delete, mark_read)")
	fmt.Println("GET  /v1/conversations - list your conversations with unread counts")
	fmt.Println("GET  /v1/messages/{user} - your history with another user")
	fmt.Println("PUT  /v1/conversations/{id}/read - mark a conversation read")

	fmt.Println("\n== Production? ================================================")
	be, fe, ak := 0, 0, 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	tlsOK := eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	if eff.Config != nil && eff.Config.Retention.Enabled {
		if eff.Config.Retention.Cron != "" {
			fmt.Printf("- Retention: enabled (cron=%s)\n", eff.Config.Retention.Cron)
		} else {
			fmt.Println("- Retention: enabled")
		}
	} else {
		fmt.Println("- Retention: disabled")
	}

	fmt.Println("\n== Logs: ======================================================")
}
