// Package translation is the subtitle translation capability served by an
// inference worker. Texts are translated in small batches; a batch that fails
// keeps its original texts so one bad line never loses a whole document.
package translation
