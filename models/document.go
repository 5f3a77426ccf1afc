package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Document is implemented by every stored model.
type Document interface {
	DocID() primitive.ObjectID
	SetDocID(primitive.ObjectID)
}

func (t *Tour) DocID() primitive.ObjectID { return t.ID }
func (t *Tour) SetDocID(id primitive.ObjectID) { t.ID = id }
func (u *User) DocID() primitive.ObjectID { return u.ID }
func (u *User) SetDocID(id primitive.ObjectID) { u.ID = id }
func (r *Review) DocID() primitive.ObjectID { return r.ID }
func (r *Review) SetDocID(id primitive.ObjectID) { r.ID = id }
func (b *Booking) DocID() primitive.ObjectID { return b.ID }
func (b *Booking) SetDocID(id primitive.ObjectID) { b.ID = id }
