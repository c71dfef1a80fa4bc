package storageerrors

import (
	"errors"
	"net/http"

	"github.com/Azure/azure-sdk-for-go/storage"
)

func ToStorgeError(e error) *storage.AzureStorageServiceError {
	var aze storage.AzureStorageServiceError
	if errors.As(e, &aze) {
		return &aze
	}

	var azePtr *storage.AzureStorageServiceError
	if errors.As(e, &azePtr) && azePtr != nil {
		return azePtr
	}
	return nil
}

func hasStatus(e error, code int) bool {
	if e == nil {
		return false
	}
	aze := ToStorgeError(e)
	if aze == nil {
		return false
	}

	return aze.StatusCode == code
}

func IsNotFoundError(e error) bool {
	return hasStatus(e, http.StatusNotFound)
}

func IsConflictError(e error) bool {
	return hasStatus(e, http.StatusConflict)
}

// etag did not match on a conditional write
func IsPreconditionFailed(e error) bool {
	return hasStatus(e, http.StatusPreconditionFailed)
}

func IsEntityAlreadyExists(e error) bool {
	if !IsConflictError(e) {
		return false
	}

	return ToStorgeError(e).Code == "EntityAlreadyExists"
}
