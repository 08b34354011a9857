package store

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Validate checks the fields of an author before it is saved
func (a *Author) Validate() error {
	return wrapValidation(validation.ValidateStruct(a,
		validation.Field(&a.Name, validation.Required.Error("author name is required")),
	))
}

// Validate checks the fields of a book before it is saved
func (b *Book) Validate() error {
	return wrapValidation(validation.ValidateStruct(b,
		validation.Field(&b.Title,
			validation.Required.Error("title is required"),
			validation.RuneLength(2, 0).Error("title must be at least 2 characters"),
		),
		validation.Field(&b.AuthorID, validation.Required.Error("author is required")),
		validation.Field(&b.Genres, validation.Each(validation.Required.Error("genre must not be empty"))),
	))
}

// Validate checks the fields of a user before it is saved
func (u *User) Validate() error {
	return wrapValidation(validation.ValidateStruct(u,
		validation.Field(&u.Username,
			validation.Required.Error("username is required"),
			validation.RuneLength(3, 0).Error("username must be at least 3 characters"),
		),
		validation.Field(&u.FavoriteGenre, validation.Required.Error("favorite genre is required")),
	))
}

func wrapValidation(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}
