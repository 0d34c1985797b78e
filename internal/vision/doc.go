// Package vision finds reference images on screen captures.
//
// Matching is grayscale normalised cross-correlation (the zero-mean
// coefficient, in [-1, 1]) computed with integral images. Large searches
// run coarse-to-fine: candidates are found on a downsampled pyramid level
// and confirmed at full resolution inside a small window, so a score that
// passes always refers to the full-resolution comparison.
//
// A Library resolves template keys to decoded images through a Catalog
// (normally the config Store), skipping files that do not exist.
package vision
