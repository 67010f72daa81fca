package domain

import "context"

// Converter rasterizes a document into page images
type Converter interface {
	// Convert renders every page of the document at path. The caller owns the
	// returned PageSet and must call Cleanup.
	Convert(ctx context.Context, path string) (PageSet, error)
}

// PageSet is a scoped set of rendered pages backed by temporary files
type PageSet interface {
	Pages() []PageImage

	// Cleanup releases the source document and removes temporary files
	Cleanup() error
}

// GroupPages splits pages into analysis units: one unit per page, or a single
// unit holding every page for whole-document mode.
func GroupPages(pages []PageImage, mode PageMode) [][]PageImage {
	if len(pages) == 0 {
		return nil
	}
	if mode == PageModeWholeDocument {
		return [][]PageImage{pages}
	}
	units := make([][]PageImage, 0, len(pages))
	for _, p := range pages {
		units = append(units, []PageImage{p})
	}
	return units
}

// Analyzer turns one unit of images into an analysis
type Analyzer interface {
	// Analyze sends the images to the model using the requested mode. ModeAuto
	// lets the implementation choose.
	Analyze(ctx context.Context, images []PageImage, mode Mode) (*Analysis, error)
}

// Renderer lays out analyses into a report file
type Renderer interface {
	// Render writes the report and returns its path once it is durably on disk.
	Render(sections []Analysis, prov Provenance, thumb ThumbnailSize) (string, error)
}

// Archiver moves processed sources out of the input folder
type Archiver interface {
	Archive(path string) (string, error)
}
