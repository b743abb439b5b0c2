package ftps_test

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gonzalop/ftps"
	"github.com/gonzalop/ftps/trust"
)

func ExampleDialContext() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Chains that verify against the system roots pass; anything else is
	// rejected because no handler is asked.
	gate := trust.NewGate(trust.WithHandler(trust.AutoAccept(nil)))

	client, err := ftps.DialContext(ctx, "ftp.example.com:21",
		ftps.WithTimeout(10*time.Second),
		ftps.WithExplicitTLS(&tls.Config{MinVersion: tls.VersionTLS12}),
		ftps.WithVerifier(gate),
	)
	if err != nil {
		log.Printf("Failed to connect: %v", err)
		return
	}
	defer client.Quit()

	if err := client.Login("anonymous", "anonymous@example.com"); err != nil {
		log.Printf("Failed to login: %v", err)
		return
	}

	entries, err := client.List("/pub")
	if err != nil {
		log.Printf("Failed to list directory: %v", err)
		return
	}
	for _, e := range entries {
		fmt.Printf("%s %d %s\n", e.Kind, e.Size, e.Name)
	}
}

func ExampleClient_Retrieve() {
	client, err := ftps.Dial("ftp.example.com:21", ftps.WithTimeout(10*time.Second))
	if err != nil {
		log.Printf("Failed to connect: %v", err)
		return
	}
	defer client.Quit()

	if err := client.Login("anonymous", "anonymous@example.com"); err != nil {
		log.Printf("Failed to login: %v", err)
		return
	}

	f, err := os.Create("README")
	if err != nil {
		log.Printf("Failed to create file: %v", err)
		return
	}
	defer f.Close()

	size, _ := client.Size("/pub/README")
	pw := &ftps.ProgressWriter{
		Writer: f,
		Callback: func(n int64) bool {
			fmt.Printf("\r%d / %d bytes", n, size)
			return true
		},
	}
	if err := client.Retrieve("/pub/README", pw); err != nil {
		log.Printf("Failed to download: %v", err)
	}
}
