package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/kyonifer/silveran-reader-sub004/pkg/mp4"
	"github.com/robinjoseph08/golib/logger"
)

func main() {
	log := logger.New()

	var opts struct {
		CoverOutput string `short:"o" long:"cover-output" description:"A path to output the cover image"`
	}

	args, err := flags.Parse(&opts)
	if err != nil {
		log.Err(err).Fatal("flags parse error")
	}

	if len(args) != 1 {
		fmt.Println("go run ./cmd/scripts/debug/parse-mp4 <path/to/file.m4b>")
		os.Exit(1)
	}

	tags, err := mp4.Parse(args[0])
	if err != nil {
		log.Err(err).Fatal("mp4 parse error")
	}
	fmt.Printf("Title: %q\nArtists: %s\nNarrators: %s\nAlbum: %q\nYear: %q\nGenre: %q\nSkipped items: %d\n",
		tags.Title, strings.Join(tags.Artists, ", "), strings.Join(tags.Narrators, ", "),
		tags.Album, tags.Year, tags.Genre, tags.Skipped)
	fmt.Printf("Cover: %d bytes (%s)\n", len(tags.CoverData), tags.CoverMimeType)

	if opts.CoverOutput != "" && tags.CoverData != nil {
		if err := os.WriteFile(opts.CoverOutput, tags.CoverData, 0644); err != nil {
			log.Err(err).Fatal("file write error")
		}
	}
}
