package label

import "strings"

// SystemInstruction is sent as the system message of every completion.
const SystemInstruction = "Você transforma rótulos de produtos alimentícios em JSON estruturado no formato solicitado."

const ocrPlaceholder = "{{OCR_TEXT}}"

const promptTemplate = `Você receberá o texto extraído por OCR de um rótulo de produto alimentício.
Organize as informações no formato JSON abaixo, utilizando SOMENTE dados que aparecem explicitamente no texto.

Regras:
- Não invente nem deduza informações. Se um campo não estiver no texto, deixe-o vazio ("" ou []).
- Liste cada ingrediente separadamente no array "ingredients". NÃO agrupe vários ingredientes em um único item.
- Escreva o nome de cada ingrediente com a primeira letra maiúscula.
- Em "description", explique a função ou o papel do ingrediente no produto; deixe vazio se não souber.
- Use "safe": false apenas quando o texto indicar claramente um alérgeno ou risco; caso contrário, "safe": true.
- Em "nutrition", copie rótulos e valores exatamente como aparecem no texto, sem calcular nem converter.
- "claims" recebe frases de marketing do rótulo; "warnings" recebe avisos de alérgenos ou riscos.

Formato esperado:

{
  "productName": "",
  "brand": "",
  "ingredients": [
    {
      "name": "",
      "description": "",
      "safe": true
    }
  ],
  "nutrition": [
    {
      "label": "",
      "value": "",
      "category": ""
    }
  ],
  "additionalInfo": {
    "claims": [],
    "warnings": [],
    "servingSize": "",
    "storageInstructions": ""
  }
}

Texto OCR:
"""` + ocrPlaceholder + `"""
`

// BuildPrompt embeds the OCR text verbatim into the canonical prompt.
func BuildPrompt(ocrText string) string {
	return strings.Replace(promptTemplate, ocrPlaceholder, ocrText, 1)
}
