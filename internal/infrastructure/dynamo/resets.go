package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-accounts-nosql/internal/config"
	"github.com/go-accounts-nosql/internal/domain"
)

// ResetRepo manages password reset requests. PK: reset_code.
// Expired items are removed by the table TTL on expires_at.
type ResetRepo struct {
	client API
	tables config.DynamoTables
}

func NewResetRepo(client API, tables config.DynamoTables) *ResetRepo {
	return &ResetRepo{client: client, tables: tables}
}

// Put stores a new request. A code that is already taken yields domain.ErrAlreadyExists.
func (r *ResetRepo) Put(ctx context.Context, req *domain.PasswordResetRequest) error {
	item, err := attributevalue.MarshalMap(req)
	if err != nil {
		return fmt.Errorf("marshal reset request: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tables.ResetRequests),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#pk)"),
		ExpressionAttributeNames: map[string]string{"#pk": fieldResetCode},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("reset code collision: %w", domain.ErrAlreadyExists)
	}
	return err
}

func (r *ResetRepo) GetByCode(ctx context.Context, code string) (*domain.PasswordResetRequest, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tables.ResetRequests),
		Key:            strKey(fieldResetCode, code),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("reset request not found: %w", domain.ErrNotFound)
	}
	var req domain.PasswordResetRequest
	if err := attributevalue.UnmarshalMap(out.Item, &req); err != nil {
		return nil, fmt.Errorf("unmarshal reset request: %w", err)
	}
	return &req, nil
}

// Redeem consumes the request and stores the new password hash for its email in
// one transaction. It returns domain.ErrConflict when the code was consumed,
// expired or issued for another email, and domain.ErrNotFound when the account
// does not exist.
func (r *ResetRepo) Redeem(ctx context.Context, req *domain.PasswordResetRequest, passwordHash string, at time.Time) error {
	at = at.UTC()
	consume, err := buildUpdateExpr(map[string]interface{}{fieldConsumedAt: at})
	if err != nil {
		return err
	}
	consume = consume.withCondition(
		map[string]string{"#email": fieldEmail, "#consumed": fieldConsumedAt, "#exp": fieldExpiresAt},
		map[string]types.AttributeValue{":email": strVal(req.Email), ":now": numVal(at.Unix())},
	)

	update, err := buildUpdateExpr(map[string]interface{}{
		fieldPasswordHash: passwordHash,
		fieldUpdatedAt:    at,
	})
	if err != nil {
		return err
	}
	update = update.withCondition(map[string]string{"#pk": fieldEmail}, nil)

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(r.tables.ResetRequests),
				Key:                       strKey(fieldResetCode, req.Code),
				UpdateExpression:          aws.String(consume.Expr),
				ConditionExpression:       aws.String("#email = :email AND attribute_not_exists(#consumed) AND #exp > :now"),
				ExpressionAttributeNames:  consume.Names,
				ExpressionAttributeValues: consume.Values,
			}},
			{Update: &types.Update{
				TableName:                 aws.String(r.tables.Users),
				Key:                       strKey(fieldEmail, req.Email),
				UpdateExpression:          aws.String(update.Expr),
				ConditionExpression:       aws.String("attribute_exists(#pk)"),
				ExpressionAttributeNames:  update.Names,
				ExpressionAttributeValues: update.Values,
			}},
		},
	})
	if failed, ok := txFailures(err); ok {
		if failed(0) {
			return fmt.Errorf("reset code no longer usable: %w", domain.ErrConflict)
		}
		return fmt.Errorf("user %s not found: %w", req.Email, domain.ErrNotFound)
	}
	return err
}
