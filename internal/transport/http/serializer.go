package http

import (
	"io"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// sonicSerializer is echo's JSONSerializer backed by sonic.
type sonicSerializer struct{}

func (sonicSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	var (
		data []byte
		err  error
	)
	if indent != "" {
		data, err = sonic.ConfigStd.MarshalIndent(i, "", indent)
	} else {
		data, err = sonic.Marshal(i)
	}
	if err != nil {
		return err
	}
	_, err = c.Response().Write(append(data, '\n'))
	return err
}

func (sonicSerializer) Deserialize(c echo.Context, i interface{}) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(body, i)
}
