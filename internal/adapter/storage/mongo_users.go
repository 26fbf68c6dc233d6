package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rl1809/storefront/internal/core/domain"
)

func (s *MongoAdapter) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.users.InsertOne(ctx, user)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MongoAdapter) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (s *MongoAdapter) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *MongoAdapter) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

func (s *MongoAdapter) ListUsers(ctx context.Context) ([]domain.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cursor.Close(ctx)

	users := []domain.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

func (s *MongoAdapter) UpdateUser(ctx context.Context, user *domain.User) error {
	result, err := s.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrEmailExists
	}
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if result.MatchedCount == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (s *MongoAdapter) DeleteUser(ctx context.Context, id string) error {
	result, err := s.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrUserNotFound
	}
	if _, err := s.addresses.DeleteMany(ctx, bson.M{"user": id}); err != nil {
		return fmt.Errorf("delete user addresses: %w", err)
	}
	return nil
}

func (s *MongoAdapter) ListAddresses(ctx context.Context, userID string) ([]domain.Address, error) {
	cursor, err := s.addresses.Find(ctx, bson.M{"user": userID}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer cursor.Close(ctx)

	addresses := []domain.Address{}
	if err := cursor.All(ctx, &addresses); err != nil {
		return nil, fmt.Errorf("decode addresses: %w", err)
	}
	return addresses, nil
}

func (s *MongoAdapter) GetAddress(ctx context.Context, userID, addressID string) (*domain.Address, error) {
	var address domain.Address
	err := s.addresses.FindOne(ctx, bson.M{"_id": addressID, "user": userID}).Decode(&address)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find address: %w", err)
	}
	return &address, nil
}

func (s *MongoAdapter) SaveAddress(ctx context.Context, address *domain.Address) error {
	if address.IsDefault {
		_, err := s.addresses.UpdateMany(ctx,
			bson.M{"user": address.UserID, "_id": bson.M{"$ne": address.ID}},
			bson.M{"$set": bson.M{"isDefault": false}},
		)
		if err != nil {
			return fmt.Errorf("clear default address: %w", err)
		}
	}

	_, err := s.addresses.ReplaceOne(ctx,
		bson.M{"_id": address.ID, "user": address.UserID},
		address,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save address: %w", err)
	}
	return nil
}

func (s *MongoAdapter) DeleteAddress(ctx context.Context, userID, addressID string) error {
	result, err := s.addresses.DeleteOne(ctx, bson.M{"_id": addressID, "user": userID})
	if err != nil {
		return fmt.Errorf("delete address: %w", err)
	}
	if result.DeletedCount == 0 {
		return domain.ErrAddressNotFound
	}
	return nil
}
