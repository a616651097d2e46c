// inspect dumps the collection documents of a replica for debugging.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

func main() {
	var p string
	var collection string
	flag.StringVar(&p, "path", "", "replica path to open")
	flag.StringVar(&collection, "doc", "", "single collection to dump (posts, likes, reposts, conversations, messages, profilePins, sheets, seen)")
	flag.Parse()
	if p == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}

	db, err := pebble.Open(p, &pebble.Options{ReadOnly: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if collection != "" {
		dump(db, "doc:"+collection)
		return
	}
	for _, c := range []string{"posts", "likes", "reposts", "conversations", "messages", "profilePins", "sheets", "seen"} {
		dump(db, "doc:"+c)
	}
}

func dump(db *pebble.DB, key string) {
	v, closer, err := db.Get([]byte(key))
	if err != nil {
		fmt.Printf("%s: <missing>\n", key)
		return
	}
	defer func() { _ = closer.Close() }()
	var buf bytes.Buffer
	if err := json.Indent(&buf, v, "", "  "); err != nil {
		fmt.Printf("%s: <corrupt: %v>\n", key, err)
		return
	}
	fmt.Printf("%s:\n%s\n", key, buf.String())
}
