// Package blockfile reads and writes the rotating sequence of block files
// (blk00000.dat, blk00001.dat, ...). Each file is an independent stream of
// concatenated records; a record never spans two files.
//
// Cursor walks the sequence for the relay, Writer performs the positioned
// writes of the reconstructor and Scan checks a file end to end.
package blockfile
