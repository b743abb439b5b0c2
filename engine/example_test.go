package engine_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gonzalop/ftps/engine"
)

func ExampleEngine_Download() {
	eng := engine.New(engine.Config{
		Host:    "ftp.example.com",
		User:    "anonymous",
		TLS:     engine.TLSNone,
		Timeout: 10 * time.Second,
	})
	defer eng.Close()

	ctx := context.Background()
	if _, err := eng.ChangeDirectory(ctx, "/pub/"); err != nil {
		log.Printf("cd failed (%s): %v", engine.CodeOf(err), err)
		return
	}

	err := eng.Download(ctx, "README", ".", func(p engine.Progress) engine.Verdict {
		fmt.Printf("\r%d / %d", p.DownloadNow, p.DownloadTotal)
		return engine.Continue
	})
	if err != nil {
		log.Printf("download failed (%s): %v", engine.CodeOf(err), err)
	}
}
