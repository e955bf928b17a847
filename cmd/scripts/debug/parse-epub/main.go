package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/kyonifer/silveran-reader-sub004/pkg/epub"
	"github.com/robinjoseph08/golib/logger"
)

func main() {
	log := logger.New()

	var opts struct {
		CoverOutput string   `short:"o" long:"cover-output" description:"A path to output the cover image"`
		Fallbacks   []string `short:"f" long:"fallback" description:"Archive path to probe for a cover (repeatable)"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/parse-epub <path/to/file.epub>")
		os.Exit(1)
	}

	metadata, err := epub.Parse(args[0])
	if err != nil {
		log.Err(err).Fatal("epub parse error")
	}
	fmt.Printf("Package: %s\nTitle: %s\nSubtitle: %s\nLanguage: %s\nDate: %s\nReadaloud: %v\n",
		metadata.Path, metadata.Title, metadata.Subtitle, metadata.Language, metadata.Date, metadata.Readaloud)
	for _, c := range metadata.Creators {
		fmt.Printf("Creator: %s (%s)\n", c.Name, c.Role)
	}
	if metadata.Series != "" {
		fmt.Printf("Series: %s", metadata.Series)
		if metadata.SeriesIndex != nil {
			fmt.Printf(" #%v", *metadata.SeriesIndex)
		}
		fmt.Println()
	}

	fallbacks := epub.DefaultCoverFallbacks
	if len(opts.Fallbacks) > 0 {
		fallbacks = opts.Fallbacks
	}
	cover, ok := epub.ExtractCover(args[0], fallbacks)
	if !ok {
		fmt.Println("Cover: none")
		return
	}
	fmt.Printf("Cover: %s (%s, %d bytes)\n", cover.Path, cover.MimeType, len(cover.Data))

	if opts.CoverOutput != "" {
		if err := os.WriteFile(opts.CoverOutput, cover.Data, 0644); err != nil {
			log.Err(err).Fatal("file write error")
		}
	}
}
