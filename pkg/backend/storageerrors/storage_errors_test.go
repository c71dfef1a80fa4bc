package storageerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Azure/azure-sdk-for-go/storage"
)

func TestClassification(t *testing.T) {
	exists := storage.AzureStorageServiceError{StatusCode: 409, Code: "EntityAlreadyExists"}
	conflict := storage.AzureStorageServiceError{StatusCode: 409}
	notFound := storage.AzureStorageServiceError{StatusCode: 404}
	precondition := &storage.AzureStorageServiceError{StatusCode: 412, Code: "UpdateConditionNotSatisfied"}

	if !IsEntityAlreadyExists(exists) {
		t.Fatalf("expected EntityAlreadyExists to be detected")
	}
	if IsEntityAlreadyExists(conflict) {
		t.Fatalf("expected plain conflict to not be EntityAlreadyExists")
	}
	if !IsConflictError(fmt.Errorf("wrapped: %w", conflict)) {
		t.Fatalf("expected wrapped conflict to be detected")
	}
	if !IsNotFoundError(notFound) {
		t.Fatalf("expected not found to be detected")
	}
	if !IsPreconditionFailed(precondition) {
		t.Fatalf("expected pointer precondition error to be detected")
	}
	if IsNotFoundError(nil) || IsConflictError(errors.New("409")) {
		t.Fatalf("expected non storage errors to not be classified")
	}
}
