package banner

import (
	"fmt"

	"propsync/pkg/config"
)

const banner = `
██████╗ ██████╗  ██████╗ ██████╗ ███████╗██╗   ██╗███╗   ██╗ ██████╗
██╔══██╗██╔══██╗██╔═══██╗██╔══██╗██╔════╝╚██╗ ██╔╝████╗  ██║██╔════╝
██████╔╝██████╔╝██║   ██║██████╔╝███████╗ ╚████╔╝ ██╔██╗ ██║██║
██╔═══╝ ██╔══██╗██║   ██║██╔═══╝ ╚════██║  ╚██╔╝  ██║╚██╗██║██║
██║     ██║  ██║╚██████╔╝██║     ███████║   ██║   ██║ ╚████║╚██████╗
╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚═╝     ╚══════╝   ╚═╝   ╚═╝  ╚═══╝ ╚═════╝
`

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, data dir, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dataDir = eff.DataDir
	if dataDir == "" && eff.Config != nil {
		dataDir = eff.Config.Server.DataDir
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("Data Dir: %s\n", dataDir)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Production? =================================================")
	// API keys
	pk := 0
	ak := 0
	if eff.Config != nil {
		pk = len(eff.Config.Security.APIKeys.Producer)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if pk > 0 {
		fmt.Printf("- Producer API keys: OK (%d)\n", pk)
	} else {
		fmt.Println("- Producer API keys: MISSING (required for producer services)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	// data dir
	if eff.DataDir != "" {
		fmt.Printf("- Data Dir: %s\n", eff.DataDir)
	} else {
		fmt.Println("- Data Dir: not set (use --data or PROPSYNC_DATA_DIR)")
	}

	// surface backend
	if eff.Config != nil {
		mode := eff.Config.Surface.Mode
		if mode == "" {
			mode = "pebble"
		}
		if mode == "pebble" && eff.Config.Surface.DisableWAL {
			fmt.Printf("- Surface: %s (WAL disabled)\n", mode)
		} else {
			fmt.Printf("- Surface: %s\n", mode)
		}
	}

	// janitor
	janEnabled := false
	janInfo := ""
	if eff.Config != nil {
		janEnabled = eff.Config.Janitor.Enabled
		if janEnabled && eff.Config.Janitor.Cron != "" {
			janInfo = "cron=" + eff.Config.Janitor.Cron
		}
	}
	if janEnabled {
		if janInfo != "" {
			fmt.Printf("- Janitor: enabled (%s)\n", janInfo)
		} else {
			fmt.Println("- Janitor: enabled")
		}
	} else {
		fmt.Println("- Janitor: disabled")
	}

	// telemetry
	if eff.Config != nil && eff.Config.Telemetry.Enabled {
		fmt.Println("- Telemetry: enabled")
	} else {
		fmt.Println("- Telemetry: disabled")
	}

	fmt.Println("\nFor configuration guidance, visit: https://propsync.dev/docs")
}
