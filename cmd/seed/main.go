package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"library-system/library"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// manifest is the seed file layout: a catalog and a member roster.
type manifest struct {
	Books []struct {
		Title  string `json:"title"`
		Author string `json:"author"`
		ISBN   string `json:"isbn"`
		Copies int    `json:"copies"`
	} `json:"books"`
	Members []struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		MaxBooks int    `json:"max_books"`
	} `json:"members"`
}

func main() {
	dbPath := flag.String("db", "library.db", "path to the library database")
	file := flag.String("file", "seed.json", "seed manifest")
	reset := flag.Bool("reset", false, "delete the existing database first")
	flag.Parse()

	if *reset {
		for _, f := range []string{*dbPath, *dbPath + "-shm", *dbPath + "-wal"} {
			if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "Warning: could not remove %s: %v\n", f, err)
			}
		}
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading manifest: %v\n", err)
		os.Exit(1)
	}
	var m manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		fmt.Fprintf(os.Stderr, "Error decoding manifest: %v\n", err)
		os.Exit(1)
	}

	db, err := library.Open(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	var catalog library.CatalogStore
	var members library.MemberStore
	imported, failed := 0, 0

	for _, b := range m.Books {
		copies := b.Copies
		if copies < 1 {
			copies = 1
		}
		id, err := catalog.AddBook(ctx, db, library.NewBook{
			Title:  b.Title,
			Author: b.Author,
			ISBN:   b.ISBN,
			Total:  copies,
		})
		if err != nil {
			fmt.Printf("book %q: ERROR - %v\n", b.Title, err)
			failed++
			continue
		}
		fmt.Printf("book %q by %s: id %d, %d copies\n", b.Title, b.Author, id, copies)
		imported++
	}

	for _, mm := range m.Members {
		id, err := members.AddMember(ctx, db, library.NewMember{
			FullName: mm.FullName,
			Email:    mm.Email,
			MaxBooks: mm.MaxBooks,
		})
		if err != nil {
			fmt.Printf("member %q: ERROR - %v\n", mm.FullName, err)
			failed++
			continue
		}
		fmt.Printf("member %q: id %d\n", mm.FullName, id)
		imported++
	}

	fmt.Printf("\nSeed complete: %d imported, %d failed\n", imported, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
