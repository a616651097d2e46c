package banner

import (
	"fmt"
)

const banner = `
███████╗ ██████╗███████╗███╗   ██╗███████╗███████╗███████╗███████╗██████╗
██╔════╝██╔════╝██╔════╝████╗  ██║██╔════╝██╔════╝██╔════╝██╔════╝██╔══██╗
███████╗██║     █████╗  ██╔██╗ ██║█████╗  █████╗  █████╗  █████╗  ██║  ██║
╚════██║██║     ██╔══╝  ██║╚██╗██║██╔══╝  ██╔══╝  ██╔══╝  ██╔══╝  ██║  ██║
███████║╚██████╗███████╗██║ ╚████║███████╗██║     ███████╗███████╗██████╔╝
╚══════╝ ╚═════╝╚══════╝╚═╝  ╚═══╝╚══════╝╚═╝     ╚══════╝╚══════╝╚═════╝
`

// Print writes the startup banner and effective runtime info.
func Print(addr, dbPath, remoteURL, sources, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("Replica:  %s\n", dbPath)
	if remoteURL != "" {
		fmt.Printf("Remote:   %s\n", remoteURL)
	} else {
		fmt.Println("Remote:   none (local-only mode)")
	}
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("GET  /v1/scenarios/{id}/feed?limit=<n>&cursor=<c> - home feed page")
	fmt.Println("GET  /v1/scenarios/{id}/profiles/{pid}/feed?tab=posts|media|replies|likes")
	fmt.Println("GET  /v1/scenarios/{id}/conversations/{cid}/messages?desc=1")
	fmt.Println("POST /v1/scenarios/{id}/likes/{postID}/toggle - like toggle")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl 'http://localhost%s/v1/scenarios/s1/feed?limit=20'\n", addr)
	fmt.Printf("curl -X POST 'http://localhost%s/v1/scenarios/s1/likes/p1/toggle' -d '{\"profileId\":\"pr1\"}'\n", addr)
	fmt.Println("\n== Production? =================================================")
	fmt.Println("Set a proper replica path (--db)")
	fmt.Println("Configure remote.base_url and remote.token for background sync")
	fmt.Println("\n== Logs: =================================================")
}
