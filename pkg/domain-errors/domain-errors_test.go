package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"
)

type DomainErrorsSuite struct {
	suite.Suite
}

func TestDomainErrorsSuite(t *testing.T) {
	suite.Run(t, new(DomainErrorsSuite))
}

func (s *DomainErrorsSuite) TestErrorString() {
	s.Equal("tenant not found", (&Error{Code: CodeNotFound, Message: "tenant not found"}).Error())
	s.Equal("tenant_inactive", (&Error{Code: CodeTenantInactive}).Error())
}

func (s *DomainErrorsSuite) TestIsMatchesByCode() {
	s.Run("same code different message", func() {
		s.True(errors.Is(New(CodeTenantUnknown, "realm acme"), &Error{Code: CodeTenantUnknown}))
	})

	s.Run("different code", func() {
		s.False(errors.Is(New(CodeTokenExpired, ""), &Error{Code: CodeTokenInvalid}))
	})

	s.Run("through a chain of fmt wrapping", func() {
		err := fmt.Errorf("authenticate: %w", New(CodeTokenInvalid, "bad signature"))
		s.True(errors.Is(err, &Error{Code: CodeTokenInvalid}))
	})
}

func (s *DomainErrorsSuite) TestWrap() {
	s.Run("keeps the inner domain code", func() {
		wrapped := Wrap(New(CodeNotFound, "tenant not found"), CodeInternal, "load tenant")
		s.True(HasCode(wrapped, CodeNotFound))
		s.Equal("load tenant", wrapped.Error())
	})

	s.Run("applies the code to plain errors", func() {
		root := errors.New("connection reset")
		wrapped := Wrap(root, CodeProvisioningFailed, "create realm")
		s.True(HasCode(wrapped, CodeProvisioningFailed))
		s.ErrorIs(wrapped, root)
	})
}

func (s *DomainErrorsSuite) TestCodeOf() {
	s.Equal(CodeForbidden, CodeOf(fmt.Errorf("gate: %w", New(CodeForbidden, ""))))
	s.Equal(CodeInternal, CodeOf(errors.New("plain")))
	s.Equal(CodeInternal, CodeOf(nil))
}

func (s *DomainErrorsSuite) TestIsAuthentication() {
	for _, code := range []Code{CodeUnauthenticated, CodeTokenExpired, CodeTokenInvalid} {
		s.True(IsAuthentication(New(code, "")), code)
	}
	for _, code := range []Code{CodeTenantUnknown, CodeTenantInactive, CodeForbidden, CodeNotFound} {
		s.False(IsAuthentication(New(code, "")), code)
	}
}
