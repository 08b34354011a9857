// Package library is a GraphQL service for a small library catalog of authors, books and users.
//
// Logged in users can add books and authors; anyone can query them, create a user and log in.
// Clients can subscribe (over a websocket) to be sent every book as it is added.
// For example, this runs the service with everything kept in memory:
//
//	s, err := library.New(ctx, library.Secret(os.Getenv("JWT_SECRET")))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close()
//	http.ListenAndServe(":4000", s.Handler())
//
// and this query:
//
//	{
//	  allBooks(genre: "fantasy") { title author { name } }
//	}
//
// returns JSON like this:
//
//	{
//	  "data": {
//	    "allBooks": [ { "title": "The Hobbit", "author": { "name": "J. R. R. Tolkien" } } ]
//	  }
//	}
//
// The GraphQL schema is in internal/catalog/schema.graphql.  The executable is in cmd/library.
package library
